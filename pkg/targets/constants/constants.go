package constants

const (
	FormatSQLite     = "sqlite3"
	FormatSQLitePure = "sqlite"
	FormatPostgres   = "postgres"
)

func SupportedFormats() []string {
	return []string{
		FormatSQLite,
		FormatSQLitePure,
		FormatPostgres,
	}
}

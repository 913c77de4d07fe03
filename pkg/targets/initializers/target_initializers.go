package initializers

import (
	"fmt"
	"strings"

	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/targets/constants"
	"github.com/timescale/sqlreadbench/pkg/targets/postgres"
	"github.com/timescale/sqlreadbench/pkg/targets/sqlite"
)

func GetTarget(format string, opts targets.Options) (targets.ImplementedTarget, error) {
	switch format {
	case constants.FormatSQLite:
		return sqlite.NewTarget(opts), nil
	case constants.FormatSQLitePure:
		return sqlite.NewPureTarget(opts), nil
	case constants.FormatPostgres:
		return postgres.NewTarget(opts), nil
	}

	return nil, fmt.Errorf("unknown target type %q, supported: %s",
		format, strings.Join(constants.SupportedFormats(), ", "))
}

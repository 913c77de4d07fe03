package orchestrator

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/timescale/sqlreadbench/pkg/query"
	"github.com/timescale/sqlreadbench/pkg/targets/initializers"
)

// ServeWorker runs one process worth of execution units as described by the
// request on in, and writes exactly one WorkerMessage to out. The returned
// error is the failure that was reported, if any.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, pinner Pinner, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	req, err := ReadRequest(in)
	if err != nil {
		if werr := writeJSON(out, failureMessage(query.NoIndex, err)); werr != nil {
			log.WithError(werr).Error("writing worker message")
		}
		return err
	}
	log = log.WithField("process", req.ProcessIndex)

	res, err := runProcess(ctx, req, pinner, log)
	var msg WorkerMessage
	if err != nil {
		msg = failureMessage(req.ProcessIndex, err)
	} else {
		msg = resultMessage(res)
	}
	if werr := writeJSON(out, msg); werr != nil {
		return query.NewError(query.ProtocolError, errors.Wrap(werr, "write worker message")).WithProcess(req.ProcessIndex)
	}
	return err
}

func runProcess(ctx context.Context, req WorkerRequest, pinner Pinner, log *logrus.Entry) (query.ProcessResult, error) {
	cfg := req.Config
	if cfg.PinCPUs && pinner != nil {
		pin(pinner, req.CPU, log)
	}
	target, err := initializers.GetTarget(cfg.Target, cfg.TargetOptions())
	if err != nil {
		return query.ProcessResult{}, query.NewError(query.ConfigError, err).WithProcess(req.ProcessIndex)
	}
	return query.NewBenchmarkRunner(cfg, target, log).RunProcess(ctx, req.ProcessIndex)
}

// pin never fails the caller.
func pin(pinner Pinner, cpu int, log *logrus.Entry) {
	if err := pinner.Pin(cpu); err != nil {
		log.WithError(query.NewError(query.AffinityError, err)).WithField("cpu", cpu).Debug("could not pin process")
		return
	}
	log.WithField("cpu", cpu).Debug("pinned process")
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sebastian-mora/sshtoken/internal/certinfo"
)

type InspectCmd struct {
	Certificate string `arg:"" help:"certificate file, - reads standard input"`
	UTC         bool   `help:"print times in UTC instead of local time" name:"utc"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	loc := time.Local
	if c.UTC {
		loc = time.UTC
	}

	var (
		report string
		err    error
	)
	if c.Certificate == "-" {
		data, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			return fmt.Errorf("failed to read certificate: %w", readErr)
		}
		report, err = certinfo.Inspect("", data, loc)
	} else {
		report, err = certinfo.InspectFile(c.Certificate, loc)
	}
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, report)
	return nil
}

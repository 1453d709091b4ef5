package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/sebastian-mora/sshtoken/cmd/certctl/internal/commands"
	"github.com/sebastian-mora/sshtoken/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		CA        commands.CACmd        `cmd:"" name:"ca" help:"Create an RSA certificate authority key"`
		Generate  commands.GenerateCmd  `cmd:"" help:"Generate a keypair and sign it"`
		Sign      commands.SignCmd      `cmd:"" help:"Sign an existing public key"`
		Inspect   commands.InspectCmd   `cmd:"" help:"Print a certificate report"`
		Authorize commands.AuthorizeCmd `cmd:"" help:"Decide whether a certificate grants a principal access"`
		Serve     commands.ServeCmd     `cmd:"" help:"Serve the token API over HTTP"`
		Debug     bool                  `help:"Enable debug mode." env:"DEBUG"`
		Version   kong.VersionFlag
	}
)

func main() {
	// kong reads env tags while parsing, so the file has to be loaded first.
	envFile := os.Getenv("CERTCTL_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	logger.SetDebug(cli.Debug)
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}

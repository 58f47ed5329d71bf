package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/stereotype/internal/cli/ui"
	"github.com/conduit-lang/stereotype/internal/demo"
)

type demoOptions struct {
	*globalOptions
	user        string
	password    string
	interactive bool
}

// NewDemoCommand creates the demo command
func NewDemoCommand(global *globalOptions) *cobra.Command {
	opts := &demoOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the login use case in a transaction",
		Long: `Run the authenticate use case through the transactional advice and
print the transaction log.

The demo seeds the user John with password 1234. A valid login commits the
login attempt; a malformed user name such as "Mike?" fails and rolls it back.

Examples:
  stereotype demo
  stereotype demo --user 'Mike?'
  stereotype demo --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "John", "User name")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "1234", "Password")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Prompt for the credentials")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *demoOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if opts.interactive {
		if err := promptCredentials(opts); err != nil {
			return err
		}
	}

	env, err := setup(ctx, cmd, opts.globalOptions, func(logger *zap.Logger) *zap.Logger {
		return zap.New(zapcore.NewTee(logger.Core(), transcriptCore(out, opts.noColor)))
	})
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	ok, err := env.app.Login(ctx, opts.user, opts.password)
	fmt.Fprintln(out)

	var invalid *demo.InvalidUserError
	switch {
	case errors.As(err, &invalid):
		fmt.Fprint(out, ui.Warning(fmt.Sprintf("%s (the login attempt was rolled back)", err), opts.noColor))
		return nil
	case err != nil:
		return err
	case ok:
		ui.WriteSuccess(out, fmt.Sprintf("%s authenticated", opts.user), opts.noColor)
	default:
		fmt.Fprint(out, ui.Info(fmt.Sprintf("%s was not authenticated", opts.user), opts.noColor))
	}

	attempts, err := env.app.Users().Attempts(ctx)
	if err != nil {
		return err
	}
	kv := ui.NewKeyValueTable(out, opts.noColor)
	kv.AddRow("Recorded attempts", fmt.Sprint(attempts))
	kv.Render()
	return nil
}

func promptCredentials(opts *demoOptions) error {
	questions := []*survey.Question{
		{
			Name:     "user",
			Prompt:   &survey.Input{Message: "User:", Default: opts.user},
			Validate: survey.Required,
		},
		{
			Name:   "password",
			Prompt: &survey.Password{Message: "Password:"},
		},
	}

	answers := struct {
		User     string `survey:"user"`
		Password string `survey:"password"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	opts.user = answers.User
	opts.password = answers.Password
	return nil
}

// transcriptCore prints info-level messages to w without timestamps so the
// transaction sequence reads as a transcript
func transcriptCore(w io.Writer, noColor bool) zapcore.Core {
	cfg := zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeLevel: zapcore.CapitalColorLevelEncoder,
	}
	if noColor || color.NoColor {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), zapcore.InfoLevel)
}

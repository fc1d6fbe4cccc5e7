package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.4.0"

func main() {
	log.SetFlags(0)
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authsvc",
		Short:         "Authentication and session service for Glukoza.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newServeCmd(), newMailWorkerCmd())
	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	return root
}

// bindEnv ties every flag of cmd to an environment variable.  A flag set on
// the command line wins, then the environment, then `.env`, then the
// default.  The resolved value is written back to the environment so
// config.Load sees it.
func bindEnv(cmd *cobra.Command, envs map[string]string) {
	v := viper.New()
	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		// .env must be applied before flag defaults are exported, since
		// godotenv never overrides a variable that is already set
		_ = godotenv.Load()

		var err error
		fs.VisitAll(func(f *pflag.Flag) {
			env, ok := envs[f.Name]
			if !ok || err != nil {
				return
			}
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name, env)
			if !f.Changed && v.IsSet(f.Name) {
				if serr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); serr != nil {
					err = fmt.Errorf("invalid %s: %w", env, serr)
					return
				}
			}
			err = os.Setenv(env, f.Value.String())
		})
		return err
	}
}

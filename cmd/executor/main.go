package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/nestor-run/nestor/pkg/containerizer"
	"github.com/nestor-run/nestor/pkg/executor"
	"github.com/nestor-run/nestor/pkg/log"
	"github.com/nestor-run/nestor/pkg/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "executor",
	Short: "Nestor task group executor",
	Run: func(cmd *cobra.Command, args []string) {
		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			log.Fatal(err)
		}
		switch {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity >= 1:
			log.SetLevel(log.DebugLevel)
		}

		// Load executor configuration from file or environment.
		config, err := LoadConfig()
		if err != nil {
			log.Fatal(err)
		}

		config.SetDefaults()
		config.Log()

		if err := config.Validate(); err != nil {
			log.Fatal(err)
		}

		utils.EnableChildSubreaper()

		if err := os.MkdirAll(config.WorkDir, 0777); err != nil {
			log.Fatal(err)
		}

		// Sandboxes live under the work directory.
		fs := afero.NewBasePathFs(afero.NewOsFs(), config.WorkDir)
		czer := containerizer.NewProcessContainerizer(fs)

		exec := executor.New(config, czer)

		// Start the introspection endpoint if configured.
		if config.HttpUri != "" {
			host, err := utils.ParseHttpUrl(config.HttpUri)
			if err != nil {
				log.Fatal(err)
			}

			log.Info("Listening on http", host)

			r := echo.New()
			r.HideBanner = true
			r.Use(utils.HttpLogger)

			executor.NewHttpHandler(exec, r)

			go http.ListenAndServe(host, r)
		}

		if err := exec.Run(context.Background()); err != nil {
			log.Error(err)
		}

		os.Exit(exec.ExitStatus())
	},
}

func main() {
	rootCmd.Flags().StringP("work-dir", "d", "", "Sandbox work directory")
	rootCmd.Flags().StringP("listen", "l", "tcp://:9090", "Address to accept the scheduler connection on")
	rootCmd.Flags().String("listen-http", "", "Address of the introspection HTTP endpoint")
	rootCmd.Flags().String("agent-id", "", "Agent identifier")
	rootCmd.Flags().String("executor-id", "", "Executor identifier")
	rootCmd.Flags().String("parent-container-id", "", "Identifier of the executor's own container")
	rootCmd.Flags().Duration("grace-period", 0, "Grace period before forced container termination")
	rootCmd.Flags().Duration("heartbeat-interval", 0, "Interval between heartbeat events")
	rootCmd.Flags().Float64("cpus", 1, "CPU allotment")
	rootCmd.Flags().Float64("mem-mb", 1024, "Memory allotment in megabytes")
	rootCmd.Flags().Float64("disk-mb", 1024, "Disk allotment in megabytes")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("work_dir", rootCmd.Flags().Lookup("work-dir"))
	viper.BindPFlag("listen", rootCmd.Flags().Lookup("listen"))
	viper.BindPFlag("listen_http", rootCmd.Flags().Lookup("listen-http"))
	viper.BindPFlag("agent_id", rootCmd.Flags().Lookup("agent-id"))
	viper.BindPFlag("executor_id", rootCmd.Flags().Lookup("executor-id"))
	viper.BindPFlag("parent_container_id", rootCmd.Flags().Lookup("parent-container-id"))
	viper.BindPFlag("grace_period", rootCmd.Flags().Lookup("grace-period"))
	viper.BindPFlag("heartbeat_interval", rootCmd.Flags().Lookup("heartbeat-interval"))
	viper.BindPFlag("cpus", rootCmd.Flags().Lookup("cpus"))
	viper.BindPFlag("mem_mb", rootCmd.Flags().Lookup("mem-mb"))
	viper.BindPFlag("disk_mb", rootCmd.Flags().Lookup("disk-mb"))
	viper.SetEnvPrefix("nestor")
	viper.AutomaticEnv()

	viper.SetConfigName("executor.yaml")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/nestor/")
	viper.AddConfigPath("$HOME/.config/nestor")
	viper.AddConfigPath(".")
	viper.ReadInConfig()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/bvisness/hello/responder"
	"github.com/bvisness/hello/utils"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var RootCmd *cobra.Command

var cfgFile string

func init() {
	RootCmd = &cobra.Command{
		Use:   "hello",
		Short: "Answer every HTTP request on port 8080 with Hello World!",
		Long: `hello listens on port 8080 on every interface and answers every request,
whatever its method or path, with 200 and the body "Hello World!". Each
request target is printed to standard output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := responder.New(os.Stdout)
			log.Printf("Listening at %s\n", srv.Addr)
			return srv.ListenAndServe()
		},
	}

	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Read configuration from `PATH` (default $HOME/.hello.yaml)")
	RootCmd.PersistentFlags().String("logfile", "", "Write diagnostic logs to `PATH` instead of stderr")
	utils.Must(viper.BindPFlag("logfile", RootCmd.PersistentFlags().Lookup("logfile")))

	RootCmd.AddCommand(freezeCmd, probeCmd)
}

// Execute runs the root command and exits non-zero if it fails.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err once to stderr. The stack trace only goes to the
// log when the log is a file; otherwise it would repeat on stderr.
func reportError(stderr io.Writer, err error) {
	if viper.GetString("logfile") != "" {
		log.Printf("Error: %+v\n", err)
	}
	fmt.Fprintf(stderr, "ERROR: %v\n", err)
}

// initConfig reads in the config file and HELLO_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "initConfig: error finding home dir:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".hello")
	}

	viper.SetEnvPrefix("hello")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogging points the standard logger at stderr, or at a rotating file
// when one is configured. Standard output is kept for request lines.
func setupLogging(cmd *cobra.Command) {
	if logFile := viper.GetString("logfile"); logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 30,
			MaxAge:     1, //days
		})
	} else {
		log.SetOutput(os.Stderr)
	}
	log.SetPrefix(fmt.Sprintf("%s > ", cmd.CommandPath()))
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
}

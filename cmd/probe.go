package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bvisness/hello/probe"
	"github.com/bvisness/hello/responder"
	"github.com/bvisness/hello/sniff"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	probeSniff bool
	probeStall bool
	probeYAML  bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Check that a responder is up and answering correctly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := probe.Parse(args[0], strconv.Itoa(responder.Port))
		if err != nil {
			return err
		}

		p := &probe.Prober{
			Out:        cmd.ErrOrStderr(),
			ExpectBody: responder.Body,
			Stall:      probeStall,
		}
		if probeSniff {
			p.Sniffer = sniff.Live{}
		}

		report := p.Run(cmd.Context(), u)

		if probeYAML {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(report); err != nil {
				return errors.WithStack(err)
			}
			if err := enc.Close(); err != nil {
				return errors.WithStack(err)
			}
		} else {
			printReport(cmd.OutOrStdout(), u.Hostname(), u.Port(), report)
		}

		if report.Failed() {
			return errors.New("one or more checks failed")
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeSniff, "sniff", false, "Capture packets to find which program served the request (needs root)")
	probeCmd.Flags().BoolVar(&probeStall, "stall", true, "Hold a partial request open while probing")
	probeCmd.Flags().BoolVar(&probeYAML, "yaml", false, "Print the report as YAML")
}

func printReport(w io.Writer, host, port string, report probe.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Final report:")
	printCheck(w, report.HostOK, "Hostname \"%s\" is valid and can be resolved by DNS", host)
	printCheck(w, report.DNSMatches, "DNS records for %s lead to this server", host)
	printCheck(w, report.Listening, "Server is listening on port %s", port)
	httpMessage := "HTTP requests / responses are working"
	if report.HTTPMessage != "" {
		httpMessage += " (" + report.HTTPMessage + ")"
	}
	printCheck(w, report.HTTPSuccess, "%s", httpMessage)
	printCheck(w, report.Concurrent, "A stalled connection does not block other requests")

	if len(report.Listeners) > 0 {
		fmt.Fprintln(w)
		programs := "programs"
		if len(report.Listeners) == 1 {
			programs = "program"
		}
		fmt.Fprintf(w, "%d %s handled the incoming traffic:\n", len(report.Listeners), programs)

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Name", "PID", "Host", "Port"})
		for _, listener := range report.Listeners {
			table.Append([]string{listener.Name, listener.PID, listener.Host, listener.Port})
		}
		table.Render()
	}
}

func printCheck(w io.Writer, check probe.Check, msg string, a ...interface{}) {
	var c *color.Color
	var emoji string
	switch check {
	case probe.CheckSuccess:
		c, emoji = color.New(color.FgGreen), "✅"
	case probe.CheckFail:
		c, emoji = color.New(color.FgRed), "❌"
	case probe.CheckWarn:
		c, emoji = color.New(color.FgYellow), "⚠️"
	default:
		return
	}

	c.Fprintf(w, "%s "+msg+"\n", append([]interface{}{emoji}, a...)...)
}

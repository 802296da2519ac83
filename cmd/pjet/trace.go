package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcrodman/pjet/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspects recorded debug sessions",
}

var traceSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  TraceSessionsCommand,
}

var traceShowCmd = &cobra.Command{
	Use:   "show SESSION",
	Short: "Prints every register access made during a session",
	Args:  cobra.ExactArgs(1),
	RunE:  TraceShowCommand,
}

func openTraceStore() (*trace.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return trace.Open(cfg.Trace.Engine, cfg.Trace.Filename, cfg.Trace.DSN, cfg.Debugging.DatabaseLoggingEnabled)
}

func TraceSessionsCommand(cmd *cobra.Command, args []string) error {
	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	printSessions(os.Stdout, sessions)
	return nil
}

func TraceShowCommand(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session ID %q", args[0])
	}

	store, err := openTraceStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := store.FindSession(id)
	if err != nil {
		return err
	} else if session == nil {
		return fmt.Errorf("no session with ID %d", id)
	}

	accesses, err := store.Accesses(id)
	if err != nil {
		return err
	}
	printSessions(os.Stdout, []trace.Session{*session})
	fmt.Println()
	printAccesses(os.Stdout, accesses)
	return nil
}

const timeFormat = "2006-01-02 15:04:05"

func printSessions(out io.Writer, sessions []trace.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENT\tSTARTED\tDURATION\tENDED BY")
	for _, s := range sessions {
		duration, reason := "-", "(open)"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
			reason = s.EndReason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.RemoteAddr, s.StartedAt.Local().Format(timeFormat), duration, reason)
	}
	_ = w.Flush()
}

func printAccesses(out io.Writer, accesses []trace.RegisterAccess) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tOP\tADDR\tVALUE")
	for _, a := range accesses {
		fmt.Fprintf(w, "%d\t%s\t0x%02x\t0x%08x\n", a.Seq, a.Op, a.Addr, a.Value)
	}
	_ = w.Flush()
}

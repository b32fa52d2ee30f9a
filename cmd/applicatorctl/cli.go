package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type cli struct {
	serverURL string
	apiToken  string
	http      *http.Client
}

func newCLI() *cli {
	return &cli{http: &http.Client{}}
}

func (c *cli) rootCmd() *cobra.Command {
	command := &cobra.Command{
		Use:          "applicatorctl",
		Short:        "CLI for interacting with an applicatord server",
		Version:      version,
		SilenceUsage: true,
	}

	command.AddCommand(
		c.startCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.logsCmd(),
		c.watchCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&c.serverURL,
		"server",
		"http://localhost:8080",
		"Server base URL",
	)

	command.PersistentFlags().StringVar(
		&c.apiToken,
		"api-token",
		"",
		"Bearer token for the server API",
	)

	return command
}

func (c *cli) startCmd() *cobra.Command {
	var (
		email           string
		password        string
		keywords        []string
		location        string
		maxApplications int
	)

	command := &cobra.Command{
		Use:     "start [flags]",
		Short:   "Start a new application session",
		Example: "  applicatorctl start --email me@example.com --password secret --keyword golang",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"credentials": map[string]string{
					"email":    email,
					"password": password,
				},
				"options": map[string]any{
					"keywords":         keywords,
					"location":         location,
					"max_applications": maxApplications,
				},
			}

			var resp struct {
				JobID string `json:"job_id"`
			}

			if err := c.doJSON(cmd.Context(), http.MethodPost, "/api/jobs", body, &resp); err != nil {
				return err
			}

			cmd.OutOrStdout().Write([]byte(resp.JobID + "\n"))

			return nil
		},
	}

	command.Flags().StringVar(&email, "email", "", "Account email (required)")
	command.Flags().StringVar(&password, "password", "", "Account password (required)")
	command.Flags().StringArrayVar(&keywords, "keyword", nil, "Search keyword (repeatable)")
	command.Flags().StringVar(&location, "location", "", "Search location")
	command.Flags().IntVar(&maxApplications, "max-applications", 0, "Cap on applications (0 uses the server default)")

	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")

	return command
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stop [flags] JOB_ID",
		Short:   "Request a running session to stop",
		Example: "  applicatorctl stop 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.doJSON(cmd.Context(), http.MethodDelete, "/api/jobs/"+args[0], nil, nil)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status [flags] [JOB_ID]",
		Short:   "Show job status, or server capacity when no job id is given",
		Example: "  applicatorctl status 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			if len(args) == 0 {
				var resp struct {
					AtCapacity  bool `json:"at_capacity"`
					RunningJobs int  `json:"running_jobs"`
					MaxJobs     int  `json:"max_jobs"`
				}

				if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/status", nil, &resp); err != nil {
					return err
				}

				fmt.Fprintf(w, "AT CAPACITY\tRUNNING\tMAX\t\n")
				fmt.Fprintf(w, "%t\t%d\t%d\t\n", resp.AtCapacity, resp.RunningJobs, resp.MaxJobs)

				return w.Flush()
			}

			var resp pollResponse
			if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/jobs/"+args[0]+"/logs?offset=0", nil, &resp); err != nil {
				return err
			}

			fmt.Fprintf(w, "STATUS\tLOG LINES\t\n")
			fmt.Fprintf(w, "%s\t%d\t\n", resp.Status, resp.NextOffset)

			return w.Flush()
		},
	}
}

type pollResponse struct {
	Lines []struct {
		Level   string    `json:"level"`
		Message string    `json:"message"`
		Time    time.Time `json:"time"`
	} `json:"lines"`
	NextOffset int    `json:"next_offset"`
	Status     string `json:"status"`
}

func (c *cli) logsCmd() *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	command := &cobra.Command{
		Use:     "logs [flags] JOB_ID",
		Short:   "Fetch job logs by polling",
		Example: "  applicatorctl logs --follow 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset := 0

			for {
				var resp pollResponse

				path := fmt.Sprintf("/api/jobs/%s/logs?offset=%d", args[0], offset)
				if err := c.doJSON(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
					return err
				}

				for _, line := range resp.Lines {
					printLogLine(cmd.OutOrStdout(), line.Time, line.Level, line.Message)
				}

				// Resuming from next_offset is what guarantees each line is
				// seen exactly once.
				offset = resp.NextOffset

				if !follow || resp.Status != "running" {
					return nil
				}

				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	command.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until the job finishes")
	command.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval with --follow")

	return command
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "watch [flags] JOB_ID",
		Short:   "Stream job logs live until the job finishes",
		Example: "  applicatorctl watch 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := c.newRequest(cmd.Context(), http.MethodGet, "/api/jobs/"+args[0]+"/stream", nil)
			if err != nil {
				return err
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}

			return printEventStream(cmd.OutOrStdout(), resp.Body)
		},
	}
}

func (c *cli) newRequest(
	ctx context.Context,
	method string,
	path string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	return req, nil
}

// doJSON performs a request with an optional JSON body, decoding a JSON
// response into out when out is non-nil.
func (c *cli) doJSON(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError translates server error envelopes to human-readable messages.
func apiError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	switch envelope.Error.Code {
	case "NOT_FOUND":
		return errors.New("not found")
	case "AT_CAPACITY":
		return errors.New("server is at capacity, try again later")
	case "CONFLICT":
		return errors.New(envelope.Error.Message)
	case "UNAUTHENTICATED":
		return errors.New("not authenticated")
	default:
		return errors.New(envelope.Error.Message)
	}
}

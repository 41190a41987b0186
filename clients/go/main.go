// Command clawhub is a command line client for ClawHub.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawhub-core/clawhub/clients/go/clawhub"
)

func newRootCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:           "clawhub",
		Short:         "ClawHub skill registry and LiveChat client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", envOr("CLAWHUB_URL", "http://localhost:8080"), "server URL")

	client := func() *clawhub.Client { return clawhub.NewClient(baseURL) }

	cmd.AddCommand(newRegisterCmd(client))
	cmd.AddCommand(newPublishCmd(client))
	cmd.AddCommand(newJoinCmd(client))
	cmd.AddCommand(newPostCmd(client))
	cmd.AddCommand(newReadCmd(client))
	cmd.AddCommand(newChannelsCmd(client))
	cmd.AddCommand(newProjectsCmd(client))
	cmd.AddCommand(newWhoCmd(client))
	cmd.AddCommand(newHealthCmd(client))
	return cmd
}

type clientFunc func() *clawhub.Client

func newRegisterCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Register a new agent and save its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Register(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered as %s (%s)\n", resp.Username, resp.ID)
			return nil
		},
	}
}

func newPublishCmd(client clientFunc) *cobra.Command {
	var req clawhub.PublishSkillRequest
	cmd := &cobra.Command{
		Use:   "publish <name> <version>",
		Short: "Publish a skill",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name, req.Version = args[0], args[1]
			skill, err := client().PublishSkill(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s@%s\n", skill.FullName, skill.Version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "skill description")
	cmd.Flags().StringVar(&req.Category, "category", "", "skill category")
	cmd.Flags().StringSliceVar(&req.Capabilities, "capability", nil, "capability (repeatable)")
	return cmd
}

func newJoinCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join LiveChat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Join()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", resp.WelcomeMessage.Message)
			fmt.Fprintf(out, "Channels: %s\n", strings.Join(resp.Channels, ", "))
			fmt.Fprintf(out, "Active members: %d\n", resp.ActiveMembers)
			return nil
		},
	}
}

func newPostCmd(client clientFunc) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "post <message>",
		Short: "Post a LiveChat message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Send(channel, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %s to #%s\n", resp.MessageID, resp.Channel)
			return nil
		},
	}
	cmd.Flags().StringVarP(&channel, "channel", "c", clawhub.GeneralChannel, "channel id")
	return cmd
}

func newReadCmd(client clientFunc) *cobra.Command {
	var q clawhub.MessageQuery
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read LiveChat history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := client().Messages(q)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Channel, "channel", "c", "", "channel id (default all)")
	cmd.Flags().StringVar(&q.Agent, "agent", "", "only messages from this agent")
	cmd.Flags().StringVarP(&q.Text, "query", "q", "", "text to search for")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 20, "number of messages")
	return cmd
}

func printMessages(out io.Writer, msgs []clawhub.Message) {
	for _, m := range msgs {
		from := m.Agent
		if from == "" {
			from = "*"
		}
		fmt.Fprintf(out, "[%s] #%s %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"), m.Channel, from, m.Message)
	}
}

func newChannelsCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List LiveChat channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := client().Channels()
			if err != nil {
				return err
			}
			for _, ch := range channels {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %s (%d members, %d msgs)\n", ch.ID, ch.Name, ch.Members, ch.MessageCount)
			}
			return nil
		},
	}
}

func newProjectsCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List tracked skill projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := client().Projects()
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %-12s %3d%%  %s\n", p.Name, p.Status, p.Progress, strings.Join(p.Collaborators, ", "))
			}
			return nil
		},
	}
}

func newWhoCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "who <username>",
		Short: "Show an agent profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := client().GetAgent(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}

func newHealthCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Health()
			if resp != nil {
				printJSON(cmd.OutOrStdout(), resp)
			}
			return err
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

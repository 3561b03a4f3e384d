package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/benchwire/hotlist/internal/config"
	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/repository"
	"github.com/benchwire/hotlist/internal/schedule"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign administration commands",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignList,
}

var campaignCancelCmd = &cobra.Command{
	Use:   "cancel <campaign-id>",
	Short: "Cancel a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignCancel,
}

var campaignUnlockCmd = &cobra.Command{
	Use:   "unlock <campaign-id>",
	Short: "Release a campaign edit lock",
	Long:  `Release a campaign's edit lock regardless of who holds it. Use when an operator needs to edit a locked scheduled campaign.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignUnlock,
}

var (
	listStatus string
	adminActor string
)

func init() {
	campaignListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	campaignCancelCmd.Flags().StringVar(&adminActor, "actor", "admin", "actor recorded on the change")
	campaignUnlockCmd.Flags().StringVar(&adminActor, "actor", "admin", "actor recorded on the change")

	campaignCmd.AddCommand(campaignListCmd, campaignCancelCmd, campaignUnlockCmd)
}

func openRepos() (*db.DB, *repository.CampaignRepository, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return database, repository.NewCampaignRepository(database), nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	database, campaigns, err := openRepos()
	if err != nil {
		return err
	}
	defer database.Close()

	filter := model.CampaignListFilter{Status: model.CampaignStatus(listStatus), Limit: 200}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("unknown status: %s", listStatus)
	}

	items, total, err := campaigns.List(context.Background(), filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSCHEDULE\tCANDIDATES\tNEXT RUN\tLOCK")
	for i := range items {
		c := &items[i].Campaign
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			c.ID,
			c.Name,
			statusColor(c.Status),
			schedule.Describe(c),
			items[i].CandidateCount, c.BatchSize,
			formatTime(c.ScheduledAt),
			lockMark(c),
		)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d campaigns\n", total)
	return nil
}

func runCampaignCancel(cmd *cobra.Command, args []string) error {
	database, campaigns, err := openRepos()
	if err != nil {
		return err
	}
	defer database.Close()

	locks := lock.NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := campaigns.Mutate(context.Background(), args[0], func(c *model.Campaign) error {
		if c.Status.IsTerminal() {
			return fmt.Errorf("campaign is already %s", c.Status)
		}
		c.Status = model.CampaignCancelled
		c.UpdatedBy = adminActor
		locks.Release(c, adminActor)
		return nil
	})
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign %s not found", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s cancelled\n", c.ID)
	return nil
}

func runCampaignUnlock(cmd *cobra.Command, args []string) error {
	database, campaigns, err := openRepos()
	if err != nil {
		return err
	}
	defer database.Close()

	locks := lock.NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := campaigns.Mutate(context.Background(), args[0], func(c *model.Campaign) error {
		locks.Release(c, adminActor)
		c.UpdatedBy = adminActor
		return nil
	})
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign %s not found", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s unlocked\n", c.ID)
	return nil
}

func statusColor(s model.CampaignStatus) string {
	switch s {
	case model.CampaignDraft:
		return color.New(color.FgWhite).Sprint(s)
	case model.CampaignScheduled:
		return color.New(color.FgYellow).Sprint(s)
	case model.CampaignSent:
		return color.New(color.FgCyan).Sprint(s)
	case model.CampaignCompleted:
		return color.New(color.FgHiGreen).Sprint(s)
	case model.CampaignCancelled:
		return color.New(color.FgRed).Sprint(s)
	}
	return string(s)
}

func lockMark(c *model.Campaign) string {
	if c.LockedAt == nil {
		return "-"
	}
	return color.New(color.FgHiMagenta).Sprintf("locked by %s", c.LockedBy)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

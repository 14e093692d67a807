package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"amanat.org/internal/escrow"
	"amanat.org/internal/escrow/remote"
)

func init() {
	rootCmd.AddCommand(idCmd, orgCmd, campaignCmd, contributeCmd, refundCmd, withdrawCmd,
		donationCmd, balanceCmd, graceCmd, infoCmd)

	idCmd.AddCommand(idOrgCmd, idCampaignCmd)
	orgCmd.AddCommand(orgCreateCmd, orgGetCmd, orgListCmd, orgCreatorCmd, orgTrustCmd, orgVerifyCmd)
	campaignCmd.AddCommand(campaignAddCmd, campaignGetCmd, campaignListCmd)
	graceCmd.AddCommand(graceSetCmd)

	for _, c := range []*cobra.Command{idOrgCmd, idCampaignCmd, orgCreateCmd, campaignAddCmd} {
		c.Flags().String("description", "", "Description digest (0x-prefixed 32-byte hex)")
	}
	for _, c := range []*cobra.Command{idCampaignCmd, campaignAddCmd} {
		c.Flags().Int64("target", 0, "Target amount in minor units")
		c.Flags().Int64("timeline", 0, "Deadline as unix seconds")
	}
	idCampaignCmd.Flags().String("org", "", "Organization id")
	orgListCmd.Flags().Uint64("from", 0, "First registration index")
	orgListCmd.Flags().Int("limit", 50, "Page size")
}

// ─── offline ids ────────────────────────────────────────────────────────────

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Derive content ids without contacting a server",
}

var idOrgCmd = &cobra.Command{
	Use:   "org NAME",
	Short: "Print the id an organization would receive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), escrow.OrganizationID(args[0], desc))
		return err
	},
}

var idCampaignCmd = &cobra.Command{
	Use:   "campaign NAME",
	Short: "Print the id a campaign would receive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		rawOrg, _ := cmd.Flags().GetString("org")
		org, err := parseID(rawOrg)
		if err != nil {
			return fmt.Errorf("--org: %w", err)
		}
		target, _ := cmd.Flags().GetInt64("target")
		timeline, _ := cmd.Flags().GetInt64("timeline")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), escrow.CampaignID(args[0], desc, target, timeline, org))
		return err
	},
}

// ─── organizations ──────────────────────────────────────────────────────────

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register an organization owned by the caller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.CreateOrganization(ctx, args[0], desc)
		})
	},
}

var orgGetCmd = &cobra.Command{
	Use:   "get ORG_ID",
	Short: "Show an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.Organization(ctx, id)
		})
	},
}

var orgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organizations in registration order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetUint64("from")
		limit, _ := cmd.Flags().GetInt("limit")
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.Organizations(ctx, from, limit)
		})
	},
}

var orgCreatorCmd = &cobra.Command{
	Use:   "is-creator ORG_ID IDENTITY",
	Short: "Report whether IDENTITY created the organization",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			ok, err := c.IsOrganizationCreator(ctx, id, escrow.Identity(args[1]))
			return map[string]bool{"is_creator": ok}, err
		})
	},
}

var orgTrustCmd = &cobra.Command{
	Use:   "trust ORG_ID SCORE",
	Short: "Set an organization's trust score (administrators only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		score, err := parseInt(args[1])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.UpdateTrustScore(ctx, id, score)
		})
	},
}

var orgVerifyCmd = &cobra.Command{
	Use:   "verify ORG_ID BASE_SCORE",
	Short: "Mark an organization verified (administrators only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		base, err := parseInt(args[1])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.VerifyOrganization(ctx, id, base)
		})
	},
}

// ─── campaigns ──────────────────────────────────────────────────────────────

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage campaigns",
}

var campaignAddCmd = &cobra.Command{
	Use:   "add ORG_ID NAME",
	Short: "Add a campaign to an organization the caller created",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		org, err := parseID(args[0])
		if err != nil {
			return err
		}
		desc, err := descriptionFlag(cmd)
		if err != nil {
			return err
		}
		target, _ := cmd.Flags().GetInt64("target")
		timeline, _ := cmd.Flags().GetInt64("timeline")
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.AddCampaign(ctx, org, args[1], desc, target, timeline)
		})
	},
}

var campaignGetCmd = &cobra.Command{
	Use:   "get ORG_ID CAMPAIGN_ID",
	Short: "Show a campaign with its current state",
	Args:  cobra.ExactArgs(2),
	RunE: campaignRun(func(ctx context.Context, c *remote.Client, org, id escrow.ID) (any, error) {
		return c.CampaignStatus(ctx, org, id)
	}),
}

var campaignListCmd = &cobra.Command{
	Use:   "list ORG_ID",
	Short: "List an organization's campaigns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		org, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return c.Campaigns(ctx, org)
		})
	},
}

// ─── value movements ────────────────────────────────────────────────────────

var contributeCmd = &cobra.Command{
	Use:   "contribute ORG_ID CAMPAIGN_ID AMOUNT",
	Short: "Donate to a campaign",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseInt(args[2])
		if err != nil {
			return err
		}
		return campaignRun(func(ctx context.Context, c *remote.Client, org, id escrow.ID) (any, error) {
			return c.Contribute(ctx, org, id, amount)
		})(cmd, args[:2])
	},
}

var refundCmd = &cobra.Command{
	Use:   "refund ORG_ID CAMPAIGN_ID",
	Short: "Withdraw the caller's donation after the grace period",
	Args:  cobra.ExactArgs(2),
	RunE: campaignRun(func(ctx context.Context, c *remote.Client, org, id escrow.ID) (any, error) {
		return c.WithdrawDonation(ctx, org, id)
	}),
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw ORG_ID CAMPAIGN_ID",
	Short: "Pay the campaign pool to the organization's creator",
	Args:  cobra.ExactArgs(2),
	RunE: campaignRun(func(ctx context.Context, c *remote.Client, org, id escrow.ID) (any, error) {
		return c.WithdrawFunds(ctx, org, id)
	}),
}

var donationCmd = &cobra.Command{
	Use:   "donation CAMPAIGN_ID DONOR",
	Short: "Show a donor's outstanding amount",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			amount, err := c.Donation(ctx, id, escrow.Identity(args[1]))
			return map[string]int64{"amount": amount}, err
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance IDENTITY",
	Short: "Show a payout account balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			bal, err := c.Balance(ctx, escrow.Identity(args[0]))
			return map[string]int64{"balance": bal}, err
		})
	},
}

// ─── administration ─────────────────────────────────────────────────────────

var graceCmd = &cobra.Command{
	Use:   "grace",
	Short: "Show the refund grace period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			d, err := c.GracePeriod(ctx)
			return graceOutput(d), err
		})
	},
}

var graceSetCmd = &cobra.Command{
	Use:   "set SECONDS",
	Short: "Change the refund grace period (administrators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secs, err := parseInt(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			d, err := c.UpdateGracePeriod(ctx, secs)
			return graceOutput(d), err
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show server name and version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			name, version, err := c.Info(ctx)
			return map[string]string{"name": name, "version": version}, err
		})
	},
}

func graceOutput(d time.Duration) map[string]any {
	return map[string]any{"seconds": int64(d / time.Second), "duration": d.String()}
}

type campaignCall func(ctx context.Context, c *remote.Client, org, id escrow.ID) (any, error)

// campaignRun parses ORG_ID CAMPAIGN_ID and invokes call.
func campaignRun(call campaignCall) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		org, err := parseID(args[0])
		if err != nil {
			return fmt.Errorf("organization id: %w", err)
		}
		id, err := parseID(args[1])
		if err != nil {
			return fmt.Errorf("campaign id: %w", err)
		}
		return withClient(cmd, func(ctx context.Context, c *remote.Client) (any, error) {
			return call(ctx, c, org, id)
		})
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize/english"

	"github.com/antlu/drops-farmer/internal/app"
	"github.com/antlu/drops-farmer/internal/config"
	"github.com/antlu/drops-farmer/internal/crypto"
	"github.com/antlu/drops-farmer/internal/twitch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	cipher := crypto.Cipher(cfg.SecretKey)
	if err := cipher.Validate(); err != nil {
		log.Fatalf("DF_SECRET_KEY is not usable (%v). You can use this one: %s", err, crypto.GenerateKey())
	}

	db, err := app.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	claimed, err := app.LoadClaimedDrops(cfg.ClaimedDropsPath())
	if err != nil {
		log.Fatal(err)
	}

	tokens := twitch.NewTokenManager(db, cipher)
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println()
		fmt.Println("1) Add account")
		fmt.Println("2) Start farming")
		fmt.Println("3) Exit")

		choice, err := readLine(reader, "> ")
		if err != nil {
			return
		}

		switch choice {
		case "1":
			addAccount(tokens)
		case "2":
			farm(cfg, tokens, claimed, reader)
		case "3":
			return
		default:
			fmt.Println("Unknown option")
		}
	}
}

// interruptible cancels on Ctrl+C until stop is called, so an interrupt
// ends the running action and not the whole program.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func readLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func addAccount(tokens *twitch.TokenManager) {
	ctx, stop := interruptible()
	defer stop()

	account, err := twitch.DeviceFlow(ctx, func(verificationURI, userCode string) {
		fmt.Printf("Open %s and enter the code %s\n", verificationURI, userCode)
	})
	if err != nil {
		log.Printf("Error adding account: %v", err)
		return
	}

	if err := tokens.SaveAccount(account); err != nil {
		log.Printf("Error saving account: %v", err)
		return
	}
	fmt.Printf("Added %s\n", account.Login)
}

func farm(cfg *config.Config, tokens *twitch.TokenManager, claimed *app.ClaimedDrops, reader *bufio.Reader) {
	account, err := tokens.ValidAccount()
	if errors.Is(err, twitch.ErrNoAccount) {
		fmt.Println("No account found. Register first.")
		return
	}
	if err != nil {
		log.Printf("Error loading account: %v", err)
		return
	}

	apiClient, err := twitch.NewApiClient(account, cfg.Tuning.MediaTimeout)
	if err != nil {
		log.Print(err)
		return
	}

	policy := app.RetryPolicyFrom(cfg.Tuning).WithMaxAttempts(3)
	campaigns, err := app.Retry(context.Background(), policy, nil, "active campaigns", apiClient.ActiveCampaigns)
	if err != nil {
		log.Printf("Error listing campaigns: %v", err)
		return
	}

	groups := app.GroupByGame(campaigns)
	if len(groups) == 0 {
		fmt.Println("No active campaigns right now")
		return
	}

	group, ok := selectGroup(reader, groups)
	if !ok {
		return
	}

	ctx, stop := interruptible()
	defer stop()

	reporter := app.NewProgressReporter(os.Stdout, cfg.ProgressLogPath())
	farmer := app.New(apiClient, account, cfg.Tuning, claimed, reporter)
	if err := farmer.Farm(ctx, group); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Farming stopped: %v", err)
	}
}

func selectGroup(reader *bufio.Reader, groups []app.CampaignGroup) (app.CampaignGroup, bool) {
	for i, group := range groups {
		fmt.Printf("%d) %s (%s)\n", i+1, group.Game.DisplayName, english.Plural(len(group.Campaigns), "campaign", ""))
	}

	for {
		line, err := readLine(reader, "Campaign group: ")
		if err != nil {
			return app.CampaignGroup{}, false
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(groups) {
			fmt.Printf("Enter a number from 1 to %d\n", len(groups))
			continue
		}
		return groups[n-1], true
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/wa-finance/internal/app"
	"github.com/dvloznov/wa-finance/internal/config"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/router"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New().Level(logger.ParseLevel(cfg.LogLevel))

	switch os.Args[1] {
	case "send":
		runSend(cfg, log)
	case "classify":
		runClassify(cfg, log)
	case "summary":
		runSummary(cfg, log)
	case "sheets-check":
		runSheetsCheck(cfg, log)
	case "backfill":
		runBackfill(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("WhatsApp Finance CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  send          Send a WhatsApp text message")
	fmt.Println("  classify      Run the classifier on a message without storing anything")
	fmt.Println("  summary       Print the totals, categories, recent and monthly aggregates for a user")
	fmt.Println("  sheets-check  Verify spreadsheet credentials and access")
	fmt.Println("  backfill      Replay stored transactions into the configured mirrors")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func setup(cfg *config.Config, log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc, *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	return ctx, func() {
		_ = a.Close()
		cancel()
	}, a
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runSend(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "Recipient WhatsApp id (required)")
	text := fs.String("text", "", "Message body (required)")
	fs.Parse(os.Args[2:])

	if *to == "" || *text == "" {
		log.Fatal().Msg("Error: --to and --text are required")
	}

	ctx, done, a := setup(cfg, log, 30*time.Second)
	defer done()

	resp, err := a.WhatsApp.SendTextWithResponse(ctx, *to, *text)
	if err != nil {
		log.Fatal().Err(err).Msg("Send failed")
	}
	printJSON(resp)
}

func runClassify(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	text := fs.String("text", "", "Message text (required)")
	chat := fs.Bool("chat", false, "Also ask the chat responder when the text is not a transaction")
	fs.Parse(os.Args[2:])

	if strings.TrimSpace(*text) == "" {
		log.Fatal().Msg("Error: --text is required")
	}

	ctx, done, a := setup(cfg, log, 2*time.Minute)
	defer done()

	today := a.Today()
	tx, err := a.Classifier.ClassifyTransaction(ctx, *text, today)
	if err != nil {
		log.Warn().Err(err).Msg("Transaction classification failed")
	}
	if tx != nil {
		printJSON(map[string]interface{}{
			"branch":      router.BranchTransaction,
			"transaction": tx,
			"reply":       router.FormatTransaction(tx),
		})
		return
	}

	intent, err := a.Classifier.ClassifyIntent(ctx, *text, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Intent classification failed")
	}
	out := map[string]interface{}{"intent": intent}
	if intent != nil && intent.Intent == domain.IntentQuery {
		out["branch"] = router.BranchQuery
		out["range"] = intent.ResolveRange(today)
	} else {
		out["branch"] = router.BranchChat
		if *chat {
			reply, err := a.Classifier.Chat(ctx, *text, domain.ChatContext{})
			if err != nil {
				log.Fatal().Err(err).Msg("Chat failed")
			}
			out["reply"] = reply
		}
	}
	printJSON(out)
}

func runSummary(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	waID := fs.String("wa-id", "", "WhatsApp id of the user (required)")
	from := fs.String("from", "", "Start date DD/MM/YYYY (default: first day of the month)")
	to := fs.String("to", "", "End date DD/MM/YYYY (default: today)")
	typ := fs.String("type", string(domain.FilterAll), "Débito, Crédito or Todos")
	fs.Parse(os.Args[2:])

	if *waID == "" {
		log.Fatal().Msg("Error: --wa-id is required")
	}

	ctx, done, a := setup(cfg, log, time.Minute)
	defer done()

	rng := domain.MonthToDate(a.Today())
	var err error
	if *from != "" {
		if rng.From, err = domain.ParseBRDate(*from); err != nil {
			log.Fatal().Err(err).Msg("Invalid --from")
		}
	}
	if *to != "" {
		if rng.To, err = domain.ParseBRDate(*to); err != nil {
			log.Fatal().Err(err).Msg("Invalid --to")
		}
	}
	rng = rng.Ordered()

	f := domain.AggregateFilter{
		SenderID: *waID,
		From:     rng.From,
		To:       rng.To,
		Type:     domain.ParseTypeFilter(*typ),
	}

	totals, err := a.Store.Totals(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Totals failed")
	}
	f.Limit = domain.CategoryLimit
	byCategory, err := a.Store.ByCategory(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("ByCategory failed")
	}
	f.Limit = cfg.RecentLimit
	recent, err := a.Store.Recent(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Recent failed")
	}
	f.Limit = domain.MonthlyLimit
	monthly, err := a.Store.Monthly(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Monthly failed")
	}

	fmt.Printf("Resumo de %s (%s a %s, %s)\n\n", *waID, domain.FormatBRDate(rng.From), domain.FormatBRDate(rng.To), f.Type)
	fmt.Println(router.FormatTotals(totals))
	fmt.Println("\nPor categoria:")
	fmt.Println(router.FormatByCategory(byCategory))
	fmt.Println("\nÚltimas transações:")
	fmt.Println(router.FormatRecent(recent))
	fmt.Println("\nSérie mensal:")
	fmt.Println(router.FormatMonthly(monthly))
}

func runSheetsCheck(cfg *config.Config, log zerolog.Logger) {
	if !cfg.Sheets.Enabled() {
		log.Fatal().Msg("SPREADSHEET_ID is not set")
	}

	ctx, done, a := setup(cfg, log, 30*time.Second)
	defer done()

	res, err := a.Sheets.Check(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Sheets check failed")
	}
	printJSON(res)
}

func runBackfill(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	from := fs.String("from", "", "Start date DD/MM/YYYY (default: no lower bound)")
	to := fs.String("to", "", "End date DD/MM/YYYY (default: no upper bound)")
	ensureTable := fs.Bool("ensure-bigquery-table", false, "Create the BigQuery table first when missing")
	fs.Parse(os.Args[2:])

	rng, err := domain.ParseOpenRange(*from, *to)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date range")
	}

	ctx, done, a := setup(cfg, log, 30*time.Minute)
	defer done()

	if a.Mirrors.Len() == 0 {
		log.Fatal().Msg("No mirrors configured")
	}
	if a.Postgres == nil {
		log.Fatal().Msg("POSTGRES_URL is required for backfill")
	}
	if *ensureTable && a.BigQuery != nil {
		created, err := a.BigQuery.EnsureTable(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure BigQuery table")
		}
		log.Info().Bool("created", created).Msg("BigQuery table ready")
	}

	log.Info().Strs("mirrors", a.Mirrors.Names()).Msg("Starting backfill")
	res, err := app.Backfill(ctx, a.Store, a.Mirrors, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("Backfill failed")
	}
	printJSON(res)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/config"
	"github.com/shinyyama/bookloop-backend/internal/db"
	appmw "github.com/shinyyama/bookloop-backend/internal/middleware"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
	"github.com/shinyyama/bookloop-backend/internal/service"
	"gorm.io/gorm"
)

type seedBook struct {
	Owner    string
	Title    string
	Author   string
	Rent     bool
	Exchange bool
	Sale     bool
}

var demoUsers = []string{"demo-alice", "demo-bob", "demo-chiaki"}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("cmd", "seed").
		Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func run(logger zerolog.Logger) error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		logger.Info().Msg("books already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	bookRepo := repository.NewBookRepository(gdb)
	books := make([]*model.Book, 0, len(seedBooks()))
	for _, sb := range seedBooks() {
		b := &model.Book{
			OwnerUID:             sb.Owner,
			Title:                sb.Title,
			Author:               sb.Author,
			AvailableForRent:     sb.Rent,
			AvailableForExchange: sb.Exchange,
			AvailableForSale:     sb.Sale,
		}
		if err := bookRepo.Create(ctx, b); err != nil {
			return fmt.Errorf("insert book %q: %w", sb.Title, err)
		}
		books = append(books, b)
	}
	logger.Info().Int("count", len(books)).Msg("seeded books")

	// Requests go through the services so seeded data obeys the same rules
	// as live traffic.
	hub := realtime.NewHub(cfg.SubscriberBuffer, logger)
	defer hub.Close()
	requestRepo := repository.NewRequestRepository(gdb)
	messageRepo := repository.NewMessageRepository(gdb)
	notifSvc := service.NewNotificationService(repository.NewNotificationRepository(gdb), logger)
	hub.AddListener(notifSvc.HandleEvent)
	locks := service.NewKeyedLock()
	requests := service.NewRequestService(requestRepo, messageRepo, bookRepo, hub, locks, logger)
	convs := service.NewConversationService(requestRepo, messageRepo, notifSvc, hub, locks, logger)

	pending, err := requests.CreateRequest(ctx, service.CreateRequestInput{
		BookID: books[0].ID, RequesterUID: "demo-bob", Kind: model.RequestKindRent, Note: "Could I borrow it for two weeks?",
	})
	if err != nil {
		return fmt.Errorf("pending request: %w", err)
	}

	accepted, err := requests.CreateRequest(ctx, service.CreateRequestInput{
		BookID: books[2].ID, RequesterUID: "demo-alice", Kind: model.RequestKindExchange,
	})
	if err != nil {
		return fmt.Errorf("exchange request: %w", err)
	}
	if _, err := requests.Accept(ctx, accepted.ID, books[2].OwnerUID); err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	for _, m := range []struct{ from, body string }{
		{"demo-alice", "Thanks! I can bring my copy of Kitchen."},
		{books[2].OwnerUID, "Great, Friday at the library?"},
	} {
		if _, err := convs.AppendMessage(ctx, accepted.ID, m.from, m.body); err != nil {
			return fmt.Errorf("message: %w", err)
		}
	}
	logger.Info().
		Uint64("pending_id", pending.ID).
		Uint64("accepted_id", accepted.ID).
		Msg("seeded requests")

	if cfg.AuthProvider == "jwt" {
		v := appmw.NewJWTVerifier(cfg.JWTSecret)
		for _, uid := range demoUsers {
			token, err := v.Issue(uid, 24*time.Hour)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			logger.Info().Str("uid", uid).Str("token", token).Msg("demo token")
		}
	}
	return nil
}

func seedBooks() []seedBook {
	return []seedBook{
		{Owner: "demo-alice", Title: "ノルウェイの森", Author: "村上春樹", Rent: true, Sale: true},
		{Owner: "demo-alice", Title: "The Dispossessed", Author: "Ursula K. Le Guin", Rent: true, Exchange: true},
		{Owner: "demo-bob", Title: "コンビニ人間", Author: "村田沙耶香", Exchange: true, Sale: true},
		{Owner: "demo-bob", Title: "Clean Code", Author: "Robert C. Martin", Sale: true},
		{Owner: "demo-chiaki", Title: "キッチン", Author: "吉本ばなな", Rent: true, Exchange: true, Sale: true},
	}
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Book{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count books: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	force := os.Getenv("FORCE_SEED")
	return strings.EqualFold(force, "true"), nil
}

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movaschool/movaschool/internal/auth"
	"github.com/movaschool/movaschool/internal/authclient"
	"github.com/movaschool/movaschool/internal/blob"
	"github.com/movaschool/movaschool/internal/config"
	"github.com/movaschool/movaschool/internal/database"
	"github.com/movaschool/movaschool/internal/metrics"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/profile"
	"github.com/movaschool/movaschool/internal/repository"
	"github.com/movaschool/movaschool/internal/security/password"
	"github.com/movaschool/movaschool/internal/sessionsync"
)

// runConsole は対話コンソールモードで起動する。
// APIサーバーと同じDBに対してセッション同期コンポーネントを直接操作でき、
// サポート作業やプロビジョニング挙動の確認に使う。
func runConsole(cfg *config.Config, in io.Reader, out io.Writer) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	storage, err := blob.New(blob.Config{
		Driver:         cfg.AvatarStorageDriver,
		Path:           cfg.AvatarStoragePath,
		BaseURL:        cfg.AvatarBaseURL,
		S3AccessID:     cfg.S3AccessID,
		S3AccessSecret: cfg.S3AccessSecret,
		S3Region:       cfg.S3Region,
		S3Bucket:       cfg.S3Bucket,
		S3Endpoint:     cfg.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init avatar storage: %w", err)
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())

	authService := auth.NewService(identRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:            cfg.SessionMaxAge,
		SignInAttemptLimit:       cfg.SignInAttemptLimit,
		SignInAttemptWindow:      cfg.SignInAttemptWindow,
		MinPasswordLength:        cfg.MinPasswordLength,
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
		PasswordParams:           password.Default,
	})
	profileService := profile.NewService(profileRepo, storage, collector, profile.ServiceConfig{
		AvatarMaxSize: cfg.AvatarMaxSize,
	})

	client := authclient.NewInProcessClient(authService)
	syncer := sessionsync.NewSyncer(client, profileService, sessionsync.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer.Start(ctx)
	defer syncer.Stop()

	return consoleLoop(ctx, syncer, in, out)
}

// consoleLoop は1行1コマンドの対話ループ。EOFまたはexitで終了する。
func consoleLoop(ctx context.Context, syncer *sessionsync.Syncer, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "movaschool console — type 'help' for commands")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Fprintln(out, "commands:")
			fmt.Fprintln(out, "  login <email> <password>   sign in")
			fmt.Fprintln(out, "  logout                     sign out")
			fmt.Fprintln(out, "  whoami                     show the current snapshot")
			fmt.Fprintln(out, "  name <first> <last>        update profile name")
			fmt.Fprintln(out, "  exit                       quit")

		case "login":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: login <email> <password>")
				continue
			}
			if err := syncer.SignIn(ctx, fields[1], fields[2]); err != nil {
				fmt.Fprintf(out, "sign-in failed: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "signed in")

		case "logout":
			syncer.SignOut(ctx)
			fmt.Fprintln(out, "signed out")

		case "whoami":
			printSnapshot(out, syncer.Snapshot())

		case "name":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: name <first> <last>")
				continue
			}
			updated, err := syncer.UpdateProfile(ctx, model.ProfilePatch{
				FirstName: &fields[1],
				LastName:  &fields[2],
			})
			if err != nil {
				fmt.Fprintf(out, "update failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "profile updated: %s %s\n", updated.FirstName, updated.LastName)

		case "exit", "quit":
			return nil

		default:
			fmt.Fprintf(out, "unknown command %q — type 'help'\n", fields[0])
		}
	}
}

// printSnapshot は現在の認証状態を1行ずつ出力する。
func printSnapshot(out io.Writer, snap sessionsync.Snapshot) {
	if !snap.Authenticated() {
		fmt.Fprintln(out, "not authenticated")
		return
	}
	fmt.Fprintf(out, "user:    %s\n", snap.User.Email)
	fmt.Fprintf(out, "role:    %s\n", snap.Profile.Role)
	fmt.Fprintf(out, "session: %s\n", snap.Session.ID)
}

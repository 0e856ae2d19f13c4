package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bartek5186/sfa-offline/internal/app"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/syncer"
)

var ver = "1.0.0"

const help = "Komendy: start | stop | reload | status | sync | drain | login <email> <senha> | logout | failed | retry <id> | discard <id> | paths | quit"

func main() {
	a, err := app.New(app.MustAppDataDir("sfa-offline"), true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Błąd startu:", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Log
	log.Info().Str("version", ver).Msg("Aplikacja (CLI) uruchomiona")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("local api start failed")
	}

	// AutoStart tak jak w GUI
	if a.Config().AutoStart {
		if err := a.Start(ctx); err != nil {
			log.Error().Err(err).Msg("AutoStart nieudany")
		}
	}

	fmt.Println("SFA offline CLI", ver)
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}
		if quit := run(ctx, a, strings.Fields(strings.TrimSpace(line))); quit {
			cancel()
			time.Sleep(50 * time.Millisecond)
			return
		}
	}
}

func run(ctx context.Context, a *app.App, args []string) (quit bool) {
	if len(args) == 0 {
		return false // enter – ignoruj
	}
	switch strings.ToLower(args[0]) {
	case "start":
		if err := a.Start(ctx); err != nil {
			fail(err)
			return false
		}
		fmt.Println("Start OK")
	case "stop":
		a.Stop()
		fmt.Println("Zatrzymano")
	case "reload":
		if err := a.Reload(); err != nil {
			fail(err)
			return false
		}
		fmt.Println("Konfiguracja przeładowana")
	case "status":
		status(ctx, a)
	case "sync":
		uc := syncer.UserContext{}
		if u, ok, _ := a.Session.Current(ctx); ok {
			uc = syncer.UserContext{Email: u.Email, CodVendedor: u.CodVendedor}
		}
		res, err := a.Engine.TryRunFullSync(ctx, uc)
		if err != nil {
			fail(err)
			return false
		}
		printJSON(res)
	case "drain":
		res, err := a.Outbox.Drain(ctx)
		if err != nil {
			fail(err)
			return false
		}
		printJSON(res)
	case "login":
		if len(args) != 3 {
			fmt.Println("Użycie: login <email> <senha>")
			return false
		}
		res, err := a.Session.Login(ctx, args[1], args[2])
		if err != nil {
			fail(err)
			return false
		}
		mode := "online"
		if res.Offline {
			mode = "offline"
		}
		fmt.Printf("Zalogowano (%s): %s <%s>\n", mode, res.User.Name, res.User.Email)
	case "logout":
		if err := a.Session.Logout(ctx, len(args) > 1 && args[1] == "--forget"); err != nil {
			fail(err)
			return false
		}
		fmt.Println("Wylogowano")
	case "failed":
		list, err := a.Outbox.Failed(ctx)
		if err != nil {
			fail(err)
			return false
		}
		for _, e := range list {
			fmt.Printf("%s  %s %s/%s  prób: %d  %s\n", e.ID, e.Kind, e.Collection, e.Key, e.Attempts, e.LastError)
		}
		if len(list) == 0 {
			fmt.Println("Brak nieudanych zapisów")
		}
	case "retry", "discard":
		if len(args) != 2 {
			fmt.Printf("Użycie: %s <id>\n", args[0])
			return false
		}
		var err error
		if args[0] == "retry" {
			err = a.Outbox.Retry(ctx, args[1])
		} else {
			err = a.Outbox.Discard(ctx, args[1])
		}
		if err != nil {
			fail(err)
			return false
		}
		fmt.Println("OK")
	case "paths":
		fmt.Println("Logi:", a.LogPath)
		fmt.Println("Config:", a.CfgPath)
		fmt.Println("DB:", a.DB.Path)
	case "quit", "exit":
		return true
	default:
		fmt.Println("Nieznana komenda.", help)
	}
	return false
}

func status(ctx context.Context, a *app.App) {
	if a.Syncer.IsRunning() {
		fmt.Println("Status: DZIAŁA")
	} else {
		fmt.Println("Status: ZATRZYMANY")
	}
	fmt.Println("Sieć:", map[bool]string{true: "online", false: "offline"}[a.Monitor.Online()])
	if u, ok, _ := a.Session.Current(ctx); ok {
		fmt.Printf("Użytkownik: %s <%s>\n", u.Name, u.Email)
	}
	if st, err := a.Outbox.Stats(ctx); err == nil {
		fmt.Printf("Kolejka: %d oczekujących, %d nieudanych\n", st.Pending, st.Failed)
	}
	fresh, err := a.Catalog.Freshness(ctx)
	if err != nil {
		fail(err)
		return
	}
	for _, f := range fresh {
		synced := "nigdy"
		if f.SyncedAt != nil {
			synced = f.SyncedAt.Local().Format("2006-01-02 15:04")
		}
		stale := ""
		if f.Stale {
			stale = "  (nieaktualne: " + f.LastError + ")"
		}
		fmt.Printf("  %-18s %6d  %s%s\n", f.Collection, f.RecordCount, synced, stale)
	}
}

func fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	fmt.Println("Błąd:", domain.UserMessage(err))
	fmt.Println("  ", err)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bartek5186/sfa-offline/internal/app"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/getlantern/systray"
)

//go:embed assets/icon.ico
var iconData []byte

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	a, err := app.New(app.MustAppDataDir("sfa-offline"), false)
	if err != nil {
		panic(err)
	}
	log := a.Log

	// kontekst sterujący życiem procesu (CTRL+C / zamknięcie sesji)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("local api start failed")
	}

	// jeśli proces dostanie sygnał – zatrzymaj syncer i zamknij tray
	go func() {
		<-ctx.Done()
		a.Stop()
		systray.Quit()
	}()

	tooltip := func(state string) {
		systray.SetTooltip(fmt.Sprintf("SFA Offline %s - %s", ver, state))
	}

	systray.Run(func() {
		if len(iconData) > 0 {
			systray.SetIcon(iconData)
		}
		tooltip("offline")

		mStart := systray.AddMenuItem("Start synchronizacji", "Uruchom sondy i harmonogram")
		mStop := systray.AddMenuItem("Stop synchronizacji", "Zatrzymaj sondy i harmonogram")
		mStop.Disable()
		mSync := systray.AddMenuItem("Synchronizuj teraz", "Pełne pobranie danych")
		mDrain := systray.AddMenuItem("Wyślij kolejkę", "Dostarcz zapisy oczekujące")

		systray.AddSeparator()
		mOpenLogs := systray.AddMenuItem("Otwórz logi", "Pokaż plik log")
		mOpenCfg := systray.AddMenuItem("Ustawienia (config.json)", "Otwórz plik konfiguracyjny")
		mReload := systray.AddMenuItem("Przeładuj konfigurację", "Wczytaj ponownie config.json")
		systray.AddSeparator()
		mAbout := systray.AddMenuItem(fmt.Sprintf("O programie (%s)", ver), "")
		mQuit := systray.AddMenuItem("Wyjście", "Zamknij aplikację")

		// stan sieci w tooltipie
		a.Monitor.Subscribe(func(online bool) {
			if online {
				tooltip("online")
			} else {
				tooltip("offline")
			}
		})

		// AutoStart harmonogramu (nie mylić z autostartem Windows!)
		if a.Config().AutoStart {
			if err := a.Start(ctx); err == nil {
				mStart.Disable()
				mStop.Enable()
			} else {
				log.Error().Err(err).Msg("AutoStart nieudany")
				tooltip("błąd startu")
			}
		}

		go func() {
			for {
				select {
				case <-mStart.ClickedCh:
					if err := a.Start(ctx); err != nil {
						log.Error().Err(err).Msg("Start error")
						tooltip("błąd startu")
						continue
					}
					mStart.Disable()
					mStop.Enable()

				case <-mStop.ClickedCh:
					a.Stop()
					mStop.Disable()
					mStart.Enable()
					tooltip("zatrzymane")

				case <-mSync.ClickedCh:
					go func() {
						uc := syncer.UserContext{}
						if u, ok, _ := a.Session.Current(ctx); ok {
							uc = syncer.UserContext{Email: u.Email, CodVendedor: u.CodVendedor}
						}
						if _, err := a.Engine.TryRunFullSync(ctx, uc); err != nil {
							log.Warn().Err(err).Msg(domain.UserMessage(err))
						}
					}()

				case <-mDrain.ClickedCh:
					go func() {
						if _, err := a.Outbox.Drain(ctx); err != nil {
							log.Warn().Err(err).Msg(domain.UserMessage(err))
						}
					}()

				case <-mOpenLogs.ClickedCh:
					app.OpenInExplorer(a.LogPath)

				case <-mOpenCfg.ClickedCh:
					app.OpenInExplorer(a.CfgPath)

				case <-mReload.ClickedCh:
					if err := a.Reload(); err != nil {
						log.Error().Err(err).Msg("Błąd reloadu")
					}

				case <-mAbout.ClickedCh:
					log.Info().Msgf("SFA Offline %s | %s", ver, runtime.Version())

				case <-mQuit.ClickedCh:
					cancel()
					systray.Quit()
					return
				}
			}
		}()
	}, func() {
		// onExit – zamknięcie bazy i chwila na flush loggera
		a.Close()
		time.Sleep(50 * time.Millisecond)
	})
}

// Command chatsync is a terminal chat client: it connects to the relay,
// keeps the conversation synchronized through the message store, and renders
// it as a scrolling log.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/composer"
	"github.com/fathima-sithara/chatsync/internal/config"
	"github.com/fathima-sithara/chatsync/internal/history"
	"github.com/fathima-sithara/chatsync/internal/logger"
	"github.com/fathima-sithara/chatsync/internal/render"
	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/session"
	"github.com/fathima-sithara/chatsync/internal/store"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	peer := flag.Int("peer", 0, "peer user id for a direct chat")
	group := flag.Int("group", 0, "group id for a group chat")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			panic(err)
		}
	} else {
		cfg = config.Default()
	}

	log, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Client.UserID <= 0 {
		log.Fatal("client.user_id must be set")
	}

	target, err := targetFor(cfg.Client.UserID, *peer, *group)
	if err != nil {
		log.Fatalw("resolve room", "err", err)
	}

	ctx := context.Background()
	tr := transport.NewWS(wsURL(cfg.Client.ServerURL, cfg.Client.UserID, cfg.Client.Username), log)
	if err := tr.Connect(ctx); err != nil {
		log.Fatalw("connect", "url", cfg.Client.ServerURL, "err", err)
	}

	st := store.New(cfg.Client.RoomCap)
	surface := newTermSurface(os.Stdout)
	rec := render.New(surface, render.DefaultBottomTolerance)
	rec.Bind(st)

	cmp := composer.New(tr, st, cfg.Client.UserID, cfg.Client.Username, target, cfg.TypingDebounce, true)
	ctrl := session.New(cfg.Client.UserID, cfg.Client.Username, st, tr, rec, cmp, log)
	ctrl.OnTyping = func(names []string) {
		if len(names) > 0 {
			fmt.Printf("* %s typing...\n", strings.Join(names, ", "))
		}
	}
	ctrl.Start()
	if err := ctrl.SwitchRoom(target); err != nil {
		log.Fatalw("join room", "room", target.Room, "err", err)
	}
	defer ctrl.Close()

	backend := history.New(cfg.Client.ServerURL)
	var cache *history.Cache
	if cfg.Client.HistoryCachePath != "" {
		cache, err = history.OpenCache(cfg.Client.HistoryCachePath)
		if err != nil {
			log.Fatalw("open history cache", "path", cfg.Client.HistoryCachePath, "err", err)
		}
		defer cache.Close()
	}

	fmt.Printf("connected as %s (room %s), /help for commands\n", cfg.Client.Username, target.Room)
	repl(ctx, ctrl, cmp, backend, cache, cfg.Client.UserID, log)
}

func targetFor(selfID, peer, group int) (composer.Target, error) {
	id, err := room.Resolve(selfID, peer, group)
	if err != nil {
		return composer.Target{}, err
	}
	return composer.Target{Room: id, ReceiverID: peer, GroupID: group}, nil
}

func wsURL(serverURL string, userID int, username string) string {
	u := strings.Replace(serverURL, "http", "ws", 1)
	return fmt.Sprintf("%s/ws?user_id=%d&username=%s", u, userID, url.QueryEscape(username))
}

func repl(ctx context.Context, ctrl *session.Controller, cmp *composer.Composer, backend *history.Client, cache *history.Cache, selfID int, log *zap.SugaredLogger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			cmp.KeyPressed()
			if err := cmp.Submit(line); err != nil {
				fmt.Println("! send failed:", err)
			}
			continue
		}
		cmd, rest, _ := strings.Cut(line[1:], " ")
		switch cmd {
		case "help":
			fmt.Println("/peer N | /group N | /ask TEXT | /chats | /load NAME | /upload PATH | /edit ID TEXT | /timer ID SECONDS | /read ID | /quit")

		case "peer", "group":
			n, err := strconv.Atoi(rest)
			if err != nil {
				fmt.Println("! usage: /" + cmd + " N")
				continue
			}
			peer, group := 0, 0
			if cmd == "peer" {
				peer = n
			} else {
				group = n
			}
			target, err := targetFor(selfID, peer, group)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			if err := ctrl.SwitchRoom(target); err != nil {
				fmt.Println("! switch failed:", err)
			}

		case "ask":
			reply, err := backend.Ask(ctx, rest, "Normal", nil)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			fmt.Println("assistant:", reply)
			if cache != nil {
				if err := cache.AppendTurn("default", history.Turn{User: rest, Bot: reply}); err != nil {
					log.Warnw("cache turn", "err", err)
				}
			}

		case "chats":
			names, err := backend.ChatNames(ctx)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			for _, n := range names {
				fmt.Println("-", n)
			}

		case "load":
			turns, err := backend.LoadChat(ctx, rest)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			for _, t := range turns {
				fmt.Println("you:", t.User)
				fmt.Println("assistant:", t.Bot)
			}

		case "upload":
			path, err := backend.UploadFile(ctx, rest)
			if err != nil {
				fmt.Println("! upload failed:", err)
				continue
			}
			mt := mime.TypeByExtension(filepath.Ext(rest))
			if err := cmp.SubmitAttachment(path, mt); err != nil {
				fmt.Println("! send failed:", err)
			}

		case "edit":
			idStr, content, _ := strings.Cut(rest, " ")
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil || content == "" {
				fmt.Println("! usage: /edit ID TEXT")
				continue
			}
			if err := backend.EditMessage(ctx, id, content); err != nil {
				fmt.Println("!", err)
			}

		case "timer":
			idStr, secStr, _ := strings.Cut(rest, " ")
			id, err1 := strconv.ParseInt(idStr, 10, 64)
			sec, err2 := strconv.Atoi(secStr)
			if err1 != nil || err2 != nil {
				fmt.Println("! usage: /timer ID SECONDS")
				continue
			}
			if err := backend.SetDisappearTimer(ctx, id, sec); err != nil {
				fmt.Println("!", err)
			}

		case "read":
			id, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				fmt.Println("! usage: /read ID")
				continue
			}
			if err := ctrl.MarkMessageRead(id); err != nil {
				fmt.Println("!", err)
			}

		case "quit":
			return

		default:
			fmt.Println("! unknown command, /help")
		}
	}
}

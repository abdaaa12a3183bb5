package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"eatup/internal/app"
	"eatup/internal/domain"
	"eatup/internal/events"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run eatup", "error", err)
		os.Exit(1)
	}
}

func run() error {
	listGroups := flag.Bool("groups", false, "list groups with unread counters and exit")
	chatGroup := flag.String("chat", "", "open an interactive chat for the named group")
	oneShot := flag.String("send", "", "send one message to the -chat group over REST and exit")
	watch := flag.Bool("watch", false, "watch all groups for unread activity until interrupted")
	createName := flag.String("create", "", "create a group with the given name and exit")
	members := flag.String("members", "", "comma-separated member emails for -create")
	flag.Parse()

	// Local .env is optional; the token can come from the real environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	switch {
	case *listGroups:
		return printGroups(rt)
	case *createName != "":
		return createGroup(ctx, rt, *createName, *members)
	case *chatGroup != "" && *oneShot != "":
		return sendOnce(ctx, rt, *chatGroup, *oneShot)
	case *chatGroup != "":
		return runChat(ctx, rt, *chatGroup)
	case *watch:
		return runWatch(ctx, rt)
	default:
		flag.Usage()

		return nil
	}
}

func printGroups(rt *app.Runtime) error {
	groups := rt.GroupStore.ListSorted()
	if len(groups) == 0 {
		fmt.Println("no groups")

		return nil
	}
	for _, g := range groups {
		fmt.Println(formatGroup(g))
	}

	return nil
}

func createGroup(ctx context.Context, rt *app.Runtime, name, rawMembers string) error {
	group, failed, err := rt.CreateGroup(ctx, name, parseMemberList(rawMembers))
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	fmt.Printf("created group %q\n", group.Name)
	for _, email := range failed {
		fmt.Printf("could not invite %s\n", email)
	}

	return nil
}

func sendOnce(ctx context.Context, rt *app.Runtime, groupName, text string) error {
	group, err := findGroup(rt, groupName)
	if err != nil {
		return err
	}

	cfg := rt.CurrentConfig()
	if err := rt.History.SendMessage(ctx, group, text, cfg.User.Email); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func runChat(ctx context.Context, rt *app.Runtime, groupName string) error {
	group, err := findGroup(rt, groupName)
	if err != nil {
		return err
	}

	session, err := rt.OpenChat(group)
	if err != nil {
		return err
	}
	defer session.Close()
	session.Start(ctx)

	fmt.Printf("-- %s -- type a message and press enter, ctrl-d to leave\n", group.Name)

	// The list only ever grows or replaces entries in place, so printing the
	// tail on every change shows each message once.
	printed := 0
	for _, msg := range session.Messages() {
		fmt.Println(formatMessage(msg))
		printed++
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-session.Changes():
				msgs := session.Messages()
				for ; printed < len(msgs); printed++ {
					fmt.Println(formatMessage(msgs[printed]))
				}
				if len(msgs) < printed {
					printed = len(msgs)
				}
			}
		}
	}()

	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		if ctx.Err() != nil {
			break
		}
		session.Send(lines.Text())
	}

	return lines.Err()
}

func runWatch(ctx context.Context, rt *app.Runtime) error {
	if rt.Watcher == nil {
		return fmt.Errorf("cannot watch without a session token")
	}

	unreadSub := rt.Bus.Subscribe(events.TopicUnread)
	defer rt.Bus.Unsubscribe(unreadSub, events.TopicUnread)

	fmt.Println("watching for activity, ctrl-c to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-unreadSub:
			if !ok {
				return nil
			}
			event, ok := raw.(domain.UnreadEvent)
			if !ok {
				continue
			}
			if group, found := rt.GroupStore.Get(event.GroupID); found {
				fmt.Println(formatGroup(group))
			}
		}
	}
}

func findGroup(rt *app.Runtime, name string) (domain.Group, error) {
	for _, g := range rt.GroupStore.ListSorted() {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}

	return domain.Group{}, fmt.Errorf("unknown group: %s", name)
}

func parseMemberList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		email := strings.TrimSpace(part)
		if email == "" {
			continue
		}
		out = append(out, email)
	}

	return out
}

func formatGroup(g domain.Group) string {
	line := g.Name
	if g.MissedMessages > 0 {
		line = fmt.Sprintf("%s (%d unread)", line, g.MissedMessages)
	}
	if len(g.MemberNames) > 0 {
		line = fmt.Sprintf("%s - %s", line, strings.Join(g.MemberNames, ", "))
	}

	return line
}

func formatMessage(m domain.Message) string {
	name := m.Author.DisplayName()
	if m.Pending {
		return fmt.Sprintf("[%s] %s: %s (sending...)", m.SentAt.Format("15:04"), name, m.Content)
	}

	return fmt.Sprintf("[%s] %s: %s", m.SentAt.Format("15:04"), name, m.Content)
}

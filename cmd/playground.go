package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/saravenpi/chatterbox/internal/gateway"
	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/session"
	"github.com/saravenpi/chatterbox/internal/transport"
	"github.com/saravenpi/chatterbox/internal/ui"
)

const playgroundSelf = "me"

var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Offline demo with simulated contacts",
	Long: `Launch the client against an in-memory server. Contacts reply to what you send
and occasionally write on their own, so unread badges and live updates can be tried
without a backend.`,
	RunE: runPlayground,
}

func init() {
	playgroundCmd.Flags().Duration("chatter", 8*time.Second, "interval between unsolicited messages (0 disables)")
	rootCmd.AddCommand(playgroundCmd)
}

var playgroundContacts = []models.Contact{
	{ID: "alice", FullName: "Alice Martin"},
	{ID: "bob", FullName: "Bob Chen"},
	{ID: "carol", FullName: "Carol Diaz"},
	{ID: "dave", FullName: "Dave Okafor"},
}

var playgroundLines = []string{
	"are you around?",
	"just pushed the fix",
	"lunch later?",
	"did you see the build?",
	"ok sounds good",
}

func runPlayground(cmd *cobra.Command, args []string) error {
	chatter, err := cmd.Flags().GetDuration("chatter")
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gw, lb := newPlayground(ctx, chatter)
	notifier := ui.NewTeaNotifier()
	store := session.New(gw, lb, session.WithNotifier(notifier))

	toast := cfg.UI.ToastDuration
	if err := runSession(ctx, store, notifier, ui.Options{ToastDuration: toast}); err != nil {
		return fmt.Errorf("running playground: %w", err)
	}
	return nil
}

// newPlayground seeds an in-memory gateway and wires it to a loopback so sent
// messages get a reply and contacts come and go online.
func newPlayground(ctx context.Context, chatter time.Duration) (*gateway.Memory, *transport.Loopback) {
	gw := gateway.NewMemory(playgroundSelf, playgroundContacts...)
	lb := transport.NewLoopback()

	gw.Record(gw.NewMessage("alice", playgroundSelf, "welcome to the playground"))
	gw.Record(gw.NewMessage(playgroundSelf, "alice", "thanks!"))
	gw.Record(gw.NewMessage("bob", playgroundSelf, "ping me when you are free"))

	gw.OnSend(func(sent models.Message) {
		time.AfterFunc(800*time.Millisecond, func() {
			if ctx.Err() != nil {
				return
			}
			push(gw, lb, gw.NewMessage(sent.ReceiverID, gw.Self(), "echo: "+sent.Content))
		})
	})

	go simulate(ctx, gw, lb, chatter)
	return gw, lb
}

// simulate rotates who is online and, every chatter interval, has a random
// contact send a message.
func simulate(ctx context.Context, gw *gateway.Memory, lb *transport.Loopback, chatter time.Duration) {
	presence := time.NewTicker(5 * time.Second)
	defer presence.Stop()

	var messages <-chan time.Time
	if chatter > 0 {
		t := time.NewTicker(chatter)
		defer t.Stop()
		messages = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-presence.C:
			var online []string
			for _, c := range playgroundContacts {
				if rand.IntN(2) == 0 {
					online = append(online, c.ID)
				}
			}
			if _, err := lb.Emit(transport.EventOnlineUsers, online); err != nil {
				log.ErrorErr(log.CatTransport, "presence emit failed", err)
			}
		case <-messages:
			from := playgroundContacts[rand.IntN(len(playgroundContacts))]
			line := playgroundLines[rand.IntN(len(playgroundLines))]
			push(gw, lb, gw.NewMessage(from.ID, playgroundSelf, line))
		}
	}
}

func push(gw *gateway.Memory, lb *transport.Loopback, msg models.Message) {
	gw.Record(msg)
	if _, err := lb.Emit(transport.EventNewMessage, msg); err != nil {
		log.ErrorErr(log.CatTransport, "emit failed", err)
	}
}

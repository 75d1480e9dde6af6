package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/conversation"
	"github.com/hatchboard/engage-runtime/pkg/display"
	"github.com/hatchboard/engage-runtime/pkg/runtime"
	"github.com/hatchboard/engage-runtime/pkg/trigger"
)

// console renders the widget surface and conversation to stdout and feeds
// typed input back into the runtime. It stands in for the embedding page.
type console struct {
	mu sync.Mutex
	rt *runtime.Runtime
}

func newConsole() *console {
	return &console{}
}

func (c *console) attach(rt *runtime.Runtime) {
	c.mu.Lock()
	c.rt = rt
	c.mu.Unlock()
}

func (c *console) runtime() *runtime.Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rt
}

// Surface implementation

func (c *console) Mount(plan display.Plan) error {
	fmt.Printf("\n[%s %s] %s\n", plan.Element.ElementType, plan.Element.ID, plan.Element.Title)
	if plan.Element.Body != "" {
		fmt.Printf("  %s\n", plan.Element.Body)
	}
	if plan.Element.CTALabel != "" {
		fmt.Printf("  (%s: /cta %s)\n", plan.Element.CTALabel, plan.Element.ID)
	}
	return nil
}

func (c *console) SetHiding(elementID string) {}

func (c *console) Unmount(elementID string) {
	fmt.Printf("[%s dismissed]\n", elementID)
}

// Observer implementation

func (c *console) StateChanged(state conversation.State) {
	fmt.Printf("[chat: %s]\n", state)
}

func (c *console) MessagesChanged() {
	rt := c.runtime()
	if rt == nil {
		return
	}
	msgs := rt.Conversation().History().Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	fmt.Printf("%s> %s\n", last.Role, last.Content)
}

func (c *console) AgentTypingChanged(typing bool) {
	if typing {
		fmt.Println("[agent is typing...]")
	}
}

func (c *console) AITurnStarted()  { fmt.Println("[assistant is thinking...]") }
func (c *console) AITurnFinished() {}

// runConsole is the input loop. Slash commands simulate page behavior;
// anything else is sent as a chat message.
func (a *App) runConsole(ctx context.Context) {
	rt := a.runtime
	conv := rt.Conversation()

	fmt.Println("commands: /open /close /scroll <pct> /exit-intent /click <selector> /cta <element> /dismiss <element> /handoff <name> <email> /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/open":
			rt.OpenChat(ctx)
		case "/close":
			rt.CloseChat()
		case "/scroll":
			pct := 100.0
			if len(fields) > 1 {
				fmt.Sscanf(fields[1], "%f", &pct)
			}
			rt.HandleScroll(trigger.ScrollEvent{ScrollY: pct * 10, ScrollHeight: 1000, ViewportHeight: 0})
		case "/exit-intent":
			rt.HandlePointer(trigger.PointerEvent{Y: 0})
		case "/click":
			if len(fields) > 1 {
				rt.HandleClick(trigger.ClickEvent{Selector: fields[1]})
			}
		case "/cta":
			if len(fields) > 1 {
				rt.HandleElementCTA(fields[1])
			}
		case "/dismiss":
			if len(fields) > 1 {
				rt.HandleElementClose(fields[1])
			}
		case "/handoff":
			name, email := "Visitor", ""
			if len(fields) > 1 {
				name = fields[1]
			}
			if len(fields) > 2 {
				email = fields[2]
			}
			if err := conv.RequestHandoff(ctx, name, email, ""); err != nil {
				logrus.Errorf("handoff failed: %v", err)
			}
		default:
			if conv.State() == conversation.StateClosed {
				rt.OpenChat(ctx)
			}
			if conv.Mode() == chat.ModeNone {
				if err := conv.SubmitForm(ctx, "Visitor", "", "", line); err != nil {
					continue
				}
			} else {
				conv.VisitorTyping()
				if err := conv.Send(ctx, line); err != nil {
					continue
				}
			}
		}
	}
}

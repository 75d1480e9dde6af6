package display

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hatchboard/engage-runtime/pkg/analytics"
	"github.com/hatchboard/engage-runtime/pkg/clock"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

type fakeSurface struct {
	mu       sync.Mutex
	mounts   []Plan
	hiding   []string
	unmounts []string
}

func (s *fakeSurface) Mount(plan Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append(s.mounts, plan)
	return nil
}

func (s *fakeSurface) SetHiding(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hiding = append(s.hiding, id)
}

func (s *fakeSurface) Unmount(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmounts = append(s.unmounts, id)
}

type fakeGate struct {
	allow  bool
	marked []string
}

func (g *fakeGate) ShouldShow(widget.Element, time.Time) bool { return g.allow }

func (g *fakeGate) MarkShown(_ context.Context, el widget.Element, _ time.Time) error {
	g.marked = append(g.marked, el.ID)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (s *fakeSink) ElementEvent(id string, typ analytics.ElementEventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, id+":"+string(typ))
}

func setup(allow bool) (*Compositor, *fakeSurface, *fakeGate, *fakeSink, *clock.Fake, *int) {
	surface := &fakeSurface{}
	gate := &fakeGate{allow: allow}
	sink := &fakeSink{}
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	opened := 0
	c := NewCompositor(surface, gate, sink, clk, func() { opened++ })
	return c, surface, gate, sink, clk, &opened
}

func TestCompositor_DisplayMountsOnceAndMarks(t *testing.T) {
	c, surface, gate, sink, _, _ := setup(true)
	el := widget.Element{ID: "el-1", ElementType: widget.ElementPopup}

	c.Display(context.Background(), el)
	c.Display(context.Background(), el)

	if len(surface.mounts) != 1 {
		t.Errorf("mounts = %d, expected 1 (second display must no-op)", len(surface.mounts))
	}
	if len(gate.marked) != 1 || gate.marked[0] != "el-1" {
		t.Errorf("marked = %v, expected [el-1]", gate.marked)
	}
	if len(sink.events) != 1 || sink.events[0] != "el-1:impression" {
		t.Errorf("events = %v, expected one impression", sink.events)
	}
	if !c.IsLive("el-1") {
		t.Error("element not live after display")
	}
}

func TestCompositor_GateRejectionSuppresses(t *testing.T) {
	c, surface, gate, _, _, _ := setup(false)

	c.Display(context.Background(), widget.Element{ID: "el-1", ElementType: widget.ElementBanner})

	if len(surface.mounts) != 0 {
		t.Error("mounted despite gate rejection")
	}
	if len(gate.marked) != 0 {
		t.Error("marked shown despite gate rejection")
	}
}

func TestCompositor_RemoveWaitsForExitAnimation(t *testing.T) {
	c, surface, _, _, clk, _ := setup(true)

	c.Display(context.Background(), widget.Element{ID: "el-1", ElementType: widget.ElementNudge})
	c.Remove("el-1")

	if len(surface.hiding) != 1 {
		t.Fatal("hiding state not applied")
	}
	if len(surface.unmounts) != 0 {
		t.Error("unmounted before exit animation finished")
	}

	clk.Advance(ExitAnimationDuration)
	if len(surface.unmounts) != 1 {
		t.Error("not unmounted after exit animation")
	}
	if c.IsLive("el-1") {
		t.Error("element still live after removal")
	}
}

func TestCompositor_RemoveUnknownIDIsNoop(t *testing.T) {
	c, surface, _, _, _, _ := setup(true)

	c.Remove("never-shown")

	if len(surface.hiding) != 0 || len(surface.unmounts) != 0 {
		t.Error("remove of unknown id touched the surface")
	}
}

func TestCompositor_ToastAutoDismisses(t *testing.T) {
	c, surface, _, _, clk, _ := setup(true)

	c.Display(context.Background(), widget.Element{ID: "el-toast", ElementType: widget.ElementToast})

	clk.Advance(ToastAutoDismiss - time.Second)
	if !c.IsLive("el-toast") {
		t.Fatal("toast dismissed early")
	}

	clk.Advance(time.Second)
	if c.IsLive("el-toast") {
		t.Error("toast still live after auto-dismiss window")
	}

	clk.Advance(ExitAnimationDuration)
	if len(surface.unmounts) != 1 {
		t.Error("toast not unmounted")
	}
}

func TestCompositor_CloseEmitsEvent(t *testing.T) {
	c, _, _, sink, _, _ := setup(true)

	c.Display(context.Background(), widget.Element{ID: "el-1", ElementType: widget.ElementPopup})
	c.HandleClose("el-1")

	want := []string{"el-1:impression", "el-1:close"}
	if len(sink.events) != 2 || sink.events[0] != want[0] || sink.events[1] != want[1] {
		t.Errorf("events = %v, expected %v", sink.events, want)
	}
}

func TestCompositor_CTAOpenChat(t *testing.T) {
	c, _, _, sink, _, opened := setup(true)

	el := widget.Element{
		ID:          "el-1",
		ElementType: widget.ElementPopup,
		CTAAction:   widget.ActionOpenChat,
	}
	c.Display(context.Background(), el)
	c.HandleCTA("el-1")

	if *opened != 1 {
		t.Errorf("openChat calls = %d, expected 1", *opened)
	}
	if sink.events[1] != "el-1:click" {
		t.Errorf("events = %v, expected click second", sink.events)
	}
	if c.IsLive("el-1") {
		t.Error("element still live after CTA")
	}
}

func TestPlanFor_Shapes(t *testing.T) {
	tests := []struct {
		elType      widget.ElementType
		shape       Shape
		overlay     bool
		autoDismiss time.Duration
	}{
		{widget.ElementPopup, ShapePopup, true, 0},
		{widget.ElementBanner, ShapeBanner, false, 0},
		{widget.ElementNudge, ShapeNudge, false, 0},
		{widget.ElementToast, ShapeToast, false, ToastAutoDismiss},
		{widget.ElementType("hologram"), ShapeToast, false, ToastAutoDismiss},
	}
	for _, tt := range tests {
		t.Run(string(tt.elType), func(t *testing.T) {
			p := PlanFor(widget.Element{ID: "el", ElementType: tt.elType})
			if p.Shape != tt.shape {
				t.Errorf("Shape = %s, expected %s", p.Shape, tt.shape)
			}
			if p.Overlay != tt.overlay {
				t.Errorf("Overlay = %v, expected %v", p.Overlay, tt.overlay)
			}
			if p.AutoDismissAfter != tt.autoDismiss {
				t.Errorf("AutoDismissAfter = %v, expected %v", p.AutoDismissAfter, tt.autoDismiss)
			}
		})
	}
}

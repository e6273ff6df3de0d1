package input

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestHeldState(t *testing.T) {
	in := New()

	in.push(Event{Type: EventKeyDown, Key: sdl.SCANCODE_W})
	in.push(Event{Type: EventMouseDown, Button: sdl.BUTTON_LEFT})
	if !in.IsKeyDown(sdl.SCANCODE_W) {
		t.Error("expected W to be held")
	}
	if len(in.Events()) != 2 {
		t.Errorf("expected 2 events this frame, got %d", len(in.Events()))
	}
	if !in.IsButtonDown(sdl.BUTTON_LEFT) {
		t.Error("expected left button to be held")
	}

	in.events = in.events[:0]
	in.push(Event{Type: EventKeyUp, Key: sdl.SCANCODE_W})
	if in.IsKeyDown(sdl.SCANCODE_W) {
		t.Error("expected W to be released")
	}
	if !in.IsButtonDown(sdl.BUTTON_LEFT) {
		t.Error("button state must survive across frames")
	}
}

func TestAccumulatedMotion(t *testing.T) {
	in := New()
	in.push(Event{Type: EventMouseMove, DeltaX: 3, DeltaY: -1})
	in.push(Event{Type: EventMouseMove, DeltaX: 2, DeltaY: 4})
	in.push(Event{Type: EventMouseWheel, Wheel: 1})

	dx, dy := in.Drag()
	if dx != 5 || dy != 3 {
		t.Errorf("Drag() = %v, %v, want 5, 3", dx, dy)
	}
	if n := len(in.Events()); n != 3 {
		t.Errorf("expected wheel events to stay in the event list, got %d events", n)
	}
}

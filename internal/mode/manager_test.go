package mode

import "testing"

func TestManager_SetEmitsOncePerTransition(t *testing.T) {
	m := NewManager()

	var got []Mode
	m.OnChange(func(from, to Mode) {
		got = append(got, to)
	})

	m.Set(ModeNormal)
	m.Set(ModeNormal)
	m.Set(ModeInsert)
	m.Set(ModeInsert)
	m.Set(ModeNormal)

	want := []Mode{ModeNormal, ModeInsert, ModeNormal}
	if len(got) != len(want) {
		t.Fatalf("got %d changes, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestManager_FromIsPreviousMode(t *testing.T) {
	m := NewManager()
	m.Set(ModeNormal)

	var from Mode
	m.OnChange(func(f, to Mode) { from = f })
	m.Set(ModeVisual)

	if from != ModeNormal {
		t.Errorf("from = %v, want %v", from, ModeNormal)
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()

	calls := 0
	unsubscribe := m.OnChange(func(from, to Mode) { calls++ })
	m.Set(ModeInsert)
	unsubscribe()
	unsubscribe()
	m.Set(ModeNormal)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestManager_CallbackMayReadState(t *testing.T) {
	m := NewManager()

	var sawInsert bool
	m.OnChange(func(from, to Mode) {
		// Callbacks run outside the lock.
		sawInsert = m.IsInsertMode()
	})
	m.Set(ModeInsert)

	if !sawInsert {
		t.Error("callback should observe the new mode")
	}
}

func TestManager_RecordingInInsertMode(t *testing.T) {
	m := NewManager()

	m.SetRecording(true)
	if !m.Recording() {
		t.Error("Recording should be true after SetRecording(true)")
	}
	if m.IsRecordingInInsertMode() {
		t.Error("recording in unknown mode should not count")
	}

	m.Set(ModeInsert)
	if !m.IsRecordingInInsertMode() {
		t.Error("IsRecordingInInsertMode should be true while recording in insert mode")
	}

	m.SetRecording(false)
	if m.IsRecordingInInsertMode() {
		t.Error("IsRecordingInInsertMode should be false after recording stops")
	}
}

func TestManager_Toggle(t *testing.T) {
	m := NewManager()

	if !m.Enabled() {
		t.Fatal("NewManager should start enabled")
	}
	if m.Toggle() {
		t.Error("first Toggle should disable")
	}
	if m.Enabled() {
		t.Error("Enabled should be false after Toggle")
	}
	if !m.Toggle() {
		t.Error("second Toggle should enable")
	}
}

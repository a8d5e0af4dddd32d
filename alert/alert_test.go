package alert

import (
	"testing"
	"time"

	"pulsewatch/bus"
	"pulsewatch/model"
)

func TestFlatlineDetectedProducesAlert(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	var triggered []model.AlertTriggered
	b.Subscribe(model.EventAlertTriggered, func(p interface{}) { triggered = append(triggered, p.(model.AlertTriggered)) })

	b.Publish(model.EventFlatlineDetected, model.FlatlineDetected{
		Service: "svc", ConsecutiveFailures: 5, Severity: model.FlatlineCritical, Timestamp: time.Now(),
	})

	if len(triggered) != 1 {
		t.Fatalf("got %d alert_triggered, want 1", len(triggered))
	}
	if triggered[0].Alert.Type != model.AlertFlatline || triggered[0].Alert.Severity != model.AlertSevHigh {
		t.Fatalf("got %+v", triggered[0].Alert)
	}
	if triggered[0].Alert.ID == "" {
		t.Fatal("expected a generated alert ID")
	}

	history := m.History(0)
	if len(history) != 1 {
		t.Fatalf("got %d history entries, want 1", len(history))
	}
}

func TestMutedServiceProducesNoAlert(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	m.Mute("svc")

	var triggered int
	b.Subscribe(model.EventAlertTriggered, func(interface{}) { triggered++ })

	b.Publish(model.EventFlatlineDetected, model.FlatlineDetected{
		Service: "svc", ConsecutiveFailures: 3, Timestamp: time.Now(),
	})

	if triggered != 0 {
		t.Fatalf("got %d alerts for a muted service, want 0", triggered)
	}
	if len(m.History(0)) != 0 {
		t.Fatal("expected no history for a muted service")
	}
}

func TestUnmuteResumesAlerts(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	m.Mute("svc")
	m.Unmute("svc")

	if m.IsMuted("svc") {
		t.Fatal("expected IsMuted to be false after Unmute")
	}

	b.Publish(model.EventServiceRecovered, model.ServiceRecovered{Service: "svc", Downtime: 1000, Timestamp: time.Now()})

	if len(m.History(0)) != 1 {
		t.Fatalf("got %d history entries, want 1", len(m.History(0)))
	}
}

func TestPulseChangedToFlatlineIsIgnoredHereFlatlineDetectedOwnsIt(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	b.Publish(model.EventPulseChanged, model.PulseChanged{
		Service: "svc", OldStatus: model.StatusHealthy, NewStatus: model.StatusFlatline, Timestamp: time.Now(),
	})

	if len(m.History(0)) != 0 {
		t.Fatalf("expected pulse_changed to flatline to produce no alert of its own, got %+v", m.History(0))
	}
}

func TestHistoryRespectsBound(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	for i := 0; i < model.MaxAlertHistory+10; i++ {
		b.Publish(model.EventServiceRecovered, model.ServiceRecovered{Service: "svc", Timestamp: time.Now()})
	}

	if len(m.History(0)) != model.MaxAlertHistory {
		t.Fatalf("got %d entries, want %d", len(m.History(0)), model.MaxAlertHistory)
	}
}

func TestHistoryLimit(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	for i := 0; i < 5; i++ {
		b.Publish(model.EventServiceRecovered, model.ServiceRecovered{Service: "svc", Timestamp: time.Now()})
	}

	if got := m.History(2); len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

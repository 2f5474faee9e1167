package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "nasauto/system/status"},
		{"decision", topics.Decision(), "nasauto/core/decision"},
		{"state", topics.State(), "nasauto/core/state"},
		{"nas power", topics.DevicePower("nas"), "nasauto/device/nas/power"},
		{"vuplus power", topics.DevicePower("vuplus"), "nasauto/device/vuplus/power"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 1, false); err != ErrInvalidTopic {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("nasauto/core/decision", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos: got %v, want ErrInvalidQoS", err)
	}
}

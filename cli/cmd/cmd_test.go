package cmd

import "testing"

func TestCommandsRegistered(t *testing.T) {
	want := []string{"events", "process", "dispatch", "poll", "ingest"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestEventsSubcommands(t *testing.T) {
	subs := eventsCmd.Commands()
	names := map[string]bool{}
	for _, c := range subs {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "get", "reprocess"} {
		if !names[want] {
			t.Errorf("events subcommand %q not registered", want)
		}
	}
}

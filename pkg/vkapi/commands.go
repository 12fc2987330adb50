package vkapi

import (
	"strings"
	"sync"
)

// Command fires its handler when a message text contains any of the
// triggers, compared case-insensitively.
type Command struct {
	Triggers []string
	Handler  MessageHandler
}

// Matches reports whether text contains one of the triggers. Each command
// matches at most once per message regardless of how many triggers hit.
func (cmd *Command) Matches(text string) bool {
	lowerText := strings.ToLower(text)
	for _, trigger := range cmd.Triggers {
		if trigger != "" && strings.Contains(lowerText, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

type commandList struct {
	lock     sync.RWMutex
	commands []*Command
}

func (cl *commandList) add(cmd *Command) {
	cl.lock.Lock()
	cl.commands = append(cl.commands, cmd)
	cl.lock.Unlock()
}

func (cl *commandList) len() int {
	cl.lock.RLock()
	defer cl.lock.RUnlock()
	return len(cl.commands)
}

// match returns every command whose triggers hit text, in registration order.
func (cl *commandList) match(text string) []*Command {
	cl.lock.RLock()
	defer cl.lock.RUnlock()
	var matched []*Command
	for _, cmd := range cl.commands {
		if cmd.Matches(text) {
			matched = append(matched, cmd)
		}
	}
	return matched
}

// OnCommand registers a command. Commands are never removed.
func (c *Client) OnCommand(handler MessageHandler, triggers ...string) {
	c.commands.add(&Command{Triggers: triggers, Handler: handler})
	c.Logger.Debug().Strs("triggers", triggers).Msg("Registered command")
}

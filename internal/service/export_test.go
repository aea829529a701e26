package service

import "time"

// NewAgentServiceAt fixes the clock used for open-ended windows.
func NewAgentServiceAt(turns TurnRunner, timeout time.Duration, now func() time.Time) AgentService {
	return &agentService{turns: turns, timeout: timeout, now: now}
}

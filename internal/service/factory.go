package service

import "time"

type ServicesConfig struct {
	Turns        TurnRunner
	SkillTimeout time.Duration
}

type Services struct {
	cfg ServicesConfig
}

func NewServices(cfg ServicesConfig) *Services {
	return &Services{cfg: cfg}
}

func (s *Services) Agent() AgentService {
	return NewAgentService(s.cfg.Turns, s.cfg.SkillTimeout)
}

package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/ruleforge/rulenet/pkg/rulenet/agenda"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
)

// engineSink implements network.Sink, fanning an activation delta out to
// both the agenda (conflict-set bookkeeping) and the TMS (justification
// cleanup). A fired activation that later loses its supporting token must
// still have its logical asserts retracted even though it is no longer
// sitting in the agenda's entry map — §4.4's TMS contract applies
// regardless of whether the activation ever fired, so both need every
// retraction, not just the agenda.
type engineSink struct {
	agenda *agenda.Agenda
	tms    *agenda.TMS
	log    logrus.FieldLogger
}

func (s *engineSink) ActivationInserted(a network.Activation) {
	s.agenda.ActivationInserted(a)
}

func (s *engineSink) ActivationRetracted(a network.Activation) {
	s.agenda.ActivationRetracted(a)
	if err := s.tms.Retract(a.ID()); err != nil && s.log != nil {
		s.log.WithError(err).WithField("rule", a.Rule.Name).Warn("TMS cascade retraction failed")
	}
}

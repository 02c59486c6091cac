package state

// Funnel stage thresholds. Subscriber is deliberately absent from the
// score-driven path: it is only reached through an explicit upgrade.
const (
	InterestedThreshold = 20
	EngagedThreshold    = 40
	SubscriberThreshold = 60
	AdvocateThreshold   = 80
)

// NextStage maps the current stage plus the freshly computed score to the
// next funnel stage. Once an identity reaches subscriber or advocate, score
// alone never demotes it; the only score-driven move left is the promotion
// to advocate. Pure and deterministic.
func NextStage(current Stage, score int) Stage {
	if !current.Valid() {
		current = StageVisitor
	}

	if current == StageSubscriber || current == StageAdvocate {
		if score >= AdvocateThreshold {
			return StageAdvocate
		}
		return current
	}

	switch {
	case score >= EngagedThreshold:
		return StageEngaged
	case score >= InterestedThreshold:
		return StageInterested
	default:
		return StageVisitor
	}
}

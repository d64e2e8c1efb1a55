package metrics

// SplitCreate records a split request creation attempt.
func SplitCreate(status string) {
	if !enabled {
		return
	}
	splitCreateTotal.WithLabelValues(status).Inc()
}

// SplitLinePaid records a line payment confirmation. result is one of
// "paid", "duplicate" or "error".
func SplitLinePaid(result string) {
	if !enabled {
		return
	}
	splitLinePaidTotal.WithLabelValues(result).Inc()
}

// SplitTransition records a split request status change.
func SplitTransition(to string) {
	if !enabled {
		return
	}
	splitTransitionTotal.WithLabelValues(to).Inc()
}

// DAOCheck records a membership check. result is "created", "existing" or "error".
func DAOCheck(result string) {
	if !enabled {
		return
	}
	daoCheckTotal.WithLabelValues(result).Inc()
}

// DAOVerification records a verification decision.
func DAOVerification(status string) {
	if !enabled {
		return
	}
	daoVerificationTotal.WithLabelValues(status).Inc()
}

// PlanDue records a processed recurring plan occurrence.
func PlanDue(result string) {
	if !enabled {
		return
	}
	planDueTotal.WithLabelValues(result).Inc()
}

// DeploymentRecord records a deployment record operation.
func DeploymentRecord(status string) {
	if !enabled {
		return
	}
	deploymentRecordTotal.WithLabelValues(status).Inc()
}

// EventPublishFailure records an event that no publisher accepted.
func EventPublishFailure(eventType string) {
	if !enabled {
		return
	}
	eventPublishFailures.WithLabelValues(eventType).Inc()
}

package ci

// BuildStatus is the coarse state of a build plan. It is always recomputed
// from the two flags the backend reports, never stored.
type BuildStatus string

const (
	StatusInactive BuildStatus = "INACTIVE"
	StatusQueued   BuildStatus = "QUEUED"
	StatusBuilding BuildStatus = "BUILDING"
)

// StatusFromFlags derives the build status from the backend-reported
// isActive/isBuilding pair:
//
//	isActive  isBuilding  status
//	false     *           INACTIVE
//	true      false       QUEUED
//	true      true        BUILDING
func StatusFromFlags(isActive, isBuilding bool) BuildStatus {
	if isActive && !isBuilding {
		return StatusQueued
	}
	if isActive && isBuilding {
		return StatusBuilding
	}
	return StatusInactive
}

// StatusOfParticipation queries the backend for the build status of a
// participation. It returns nil when the participation has no recorded plan
// id: without a plan there is nothing to ask the backend, and guessing a
// status would be wrong.
func StatusOfParticipation(backend ContinuousIntegration, participation *Participation) (*BuildStatus, error) {
	if participation.BuildPlanID == "" {
		return nil, nil
	}
	status, err := backend.BuildStatus(PlanProjectKey(participation.BuildPlanID), participation.BuildPlanID)
	if err != nil {
		if IsNotFound(err) {
			inactive := StatusInactive
			return &inactive, nil
		}
		return nil, err
	}
	return &status, nil
}

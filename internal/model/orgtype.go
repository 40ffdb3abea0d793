package model

// OrgType is a label from the closed organization taxonomy.
type OrgType string

const (
	OrgHalfwayHouse        OrgType = "halfway_house"
	OrgRecoveryCenter      OrgType = "recovery_center"
	OrgSoberLiving         OrgType = "sober_living"
	OrgTransitionalHousing OrgType = "transitional_housing"
	OrgShelter             OrgType = "shelter"
	OrgGroupHome           OrgType = "group_home"
	OrgMentalHealth        OrgType = "mental_health"
	OrgFaithBased          OrgType = "faith_based"
	OrgCommunityService    OrgType = "community_service"
	OrgOtherNonprofit      OrgType = "other_nonprofit"
	OrgUnknown             OrgType = "unknown"
)

// TaxonomyOrder lists all labels in tie-break priority: more specific
// residential categories before generic ones.
var TaxonomyOrder = []OrgType{
	OrgHalfwayHouse,
	OrgRecoveryCenter,
	OrgSoberLiving,
	OrgTransitionalHousing,
	OrgShelter,
	OrgGroupHome,
	OrgMentalHealth,
	OrgFaithBased,
	OrgCommunityService,
	OrgOtherNonprofit,
}

// Classification is the classifier output: the winning label and the
// keyword-match score that produced it.
type Classification struct {
	Type     OrgType  `json:"type"`
	Score    float64  `json:"score"`
	Keywords []string `json:"keywords,omitempty"`
}

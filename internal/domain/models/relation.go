// internal/domain/models/relation.go
package models

// Relation kinds a family member may declare.
const (
	RelationSon        = "son"
	RelationDaughter   = "daughter"
	RelationSpouse     = "spouse"
	RelationSibling    = "sibling"
	RelationGrandchild = "grandchild"
	RelationCaregiver  = "caregiver"
	RelationOther      = "other"
)

// Relations lists every valid relation kind in display order.
var Relations = []string{
	RelationSon,
	RelationDaughter,
	RelationSpouse,
	RelationSibling,
	RelationGrandchild,
	RelationCaregiver,
	RelationOther,
}

// IsValidRelation reports whether r is a known relation kind.
func IsValidRelation(r string) bool {
	for _, v := range Relations {
		if v == r {
			return true
		}
	}
	return false
}

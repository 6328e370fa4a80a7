// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Namespace partitions connections and rooms by product area.
type Namespace string

const (
	NamespaceBrowser       Namespace = "browser"
	NamespaceAgents        Namespace = "agents"
	NamespaceCollaboration Namespace = "collaboration"
	NamespaceNotifications Namespace = "notifications"
	NamespaceOutreach      Namespace = "outreach"
	NamespaceQA            Namespace = "qa"
	NamespaceWorkflows     Namespace = "workflows"
	NamespaceVibecoding    Namespace = "vibecoding"
)

// Namespaces lists every valid namespace.
var Namespaces = []Namespace{
	NamespaceBrowser,
	NamespaceAgents,
	NamespaceCollaboration,
	NamespaceNotifications,
	NamespaceOutreach,
	NamespaceQA,
	NamespaceWorkflows,
	NamespaceVibecoding,
}

// Valid reports whether n is one of Namespaces.
func (n Namespace) Valid() bool {
	for _, known := range Namespaces {
		if n == known {
			return true
		}
	}
	return false
}

package workflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Expand creates a new runnable Instance of graph, generating a fresh
// instance ID the way the teacher's ExpandToActions generates one
// per workflow run, but retargeted: instead of prefixing actions stored
// in a shared namespace (CouchDB identifiers), the instance ID namespaces
// timer and human-task signal keys so that concurrent instances of the
// same graph never collide. Diagnostic detail goes through logrus.Debug
// rather than the teacher's raw fmt.Fprintf(os.Stderr, ...) calls.
func Expand(g *Graph, vars map[string]interface{}) *Instance {
	instanceID := uuid.New().String()
	logrus.WithFields(logrus.Fields{
		"workflow": g.ID,
		"instance": instanceID,
	}).Debug("expanding workflow graph into a new instance")

	return NewInstance(g, instanceID, vars)
}

// PrefixIdentifier namespaces identifier under instanceID, the same
// "%s--%s" scheme the teacher's prefixIdentifier uses to keep a
// workflow run's derived identifiers (there: action identifiers; here:
// timer and human-task signal keys) from colliding across concurrent
// runs of the same definition.
func PrefixIdentifier(instanceID, identifier string) string {
	if identifier == "" {
		return ""
	}
	return fmt.Sprintf("%s--%s", instanceID, identifier)
}

// TimerID returns the fully namespaced timer identifier an Instance
// should register with a scheduler.TimerRegistry for the node nodeID,
// so that FireTimer/Cancel calls target only this instance's timer.
func (inst *Instance) TimerID(nodeID string) string {
	return PrefixIdentifier(inst.ID, nodeID)
}

// UnprefixTimerID strips this instance's namespace off a timer ID
// previously produced by TimerID, recovering the bare node ID that
// FireTimer expects. Returns false if timerID does not belong to this
// instance.
func (inst *Instance) UnprefixTimerID(timerID string) (string, bool) {
	prefix := inst.ID + "--"
	if !strings.HasPrefix(timerID, prefix) {
		return "", false
	}
	return strings.TrimPrefix(timerID, prefix), true
}

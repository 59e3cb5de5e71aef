// Package skeleton defines the joint model produced by skeletal tracking and
// the contract the pipeline uses to drive an asynchronous joint tracker.
//
// A reference tracker, ExtremaTracker, is included so the pipeline can run
// without external tracking hardware or libraries. It finds a single user by
// the extremes of the thresholded depth silhouette and is not intended as a
// production pose estimator.
package skeleton

import "fmt"

// JointID identifies a tracked anatomical point.
type JointID int

// Joint identifiers. Left and right refer to the side of the screen the
// joint appears on.
const (
	Head JointID = iota
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftHand
	RightHand

	// NumJoints is the number of joint identifiers.
	NumJoints
)

var jointNames = [NumJoints]string{
	Head:          "head",
	LeftShoulder:  "left-shoulder",
	RightShoulder: "right-shoulder",
	LeftElbow:     "left-elbow",
	RightElbow:    "right-elbow",
	LeftHand:      "left-hand",
	RightHand:     "right-hand",
}

func (id JointID) String() string {
	if id < 0 || id >= NumJoints {
		return fmt.Sprintf("joint(%d)", int(id))
	}
	return jointNames[id]
}

// Joint is a tracked point: screen-space pixel position plus depth in
// millimetres.
type Joint struct {
	ScreenX int
	ScreenY int
	Z       int
}

// JointList maps every JointID to an optional Joint. A nil entry means the
// joint was not detected.
type JointList [NumJoints]*Joint

// Get returns the joint for id, or nil when absent. Safe on a nil list.
func (l *JointList) Get(id JointID) *Joint {
	if l == nil || id < 0 || id >= NumJoints {
		return nil
	}
	return l[id]
}

// Len returns the number of joints present.
func (l *JointList) Len() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, j := range l {
		if j != nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the list.
func (l *JointList) Clone() *JointList {
	if l == nil {
		return nil
	}
	out := new(JointList)
	for id, j := range l {
		if j != nil {
			c := *j
			out[id] = &c
		}
	}
	return out
}

package dynamics

import (
	"fmt"

	"github.com/OCAP2/vehicledyn/internal/rigidbody"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

// BackendKind tags the integration path of a car.
type BackendKind uint8

const (
	// DynamicOnly integrates the blended bicycle model directly.
	DynamicOnly BackendKind = iota
	// Kinematic integrates the kinematic bicycle model only.
	Kinematic
	// RigidBodyAssisted hands the desired velocity to a rigid body.
	RigidBodyAssisted
)

func (k BackendKind) String() string {
	switch k {
	case Kinematic:
		return "kinematic"
	case RigidBodyAssisted:
		return "rigidbody"
	default:
		return "dynamic"
	}
}

// IntegrationBackend is the resolved backend of one car. Handle is only set
// for RigidBodyAssisted.
type IntegrationBackend struct {
	Kind   BackendKind
	Handle core.BodyHandle
}

// Mode maps the backend back to its configuration value.
func (b IntegrationBackend) Mode() core.BackendMode {
	switch b.Kind {
	case Kinematic:
		return core.BackendKinematic
	case RigidBodyAssisted:
		return core.BackendRigidBody
	default:
		return core.BackendDynamic
	}
}

// BodyParams derives the collider description from vehicle parameters.
func BodyParams(p core.VehicleParameters) rigidbody.BodyParams {
	return rigidbody.BodyParams{
		Width:          p.Width,
		Length:         p.Length,
		Density:        p.BodyDensity(),
		Friction:       p.Backend.Friction,
		Restitution:    p.Backend.Restitution,
		LinearDamping:  p.Backend.LinearDamping,
		AngularDamping: p.Backend.AngularDamping,
	}
}

// ResolveBackend picks the backend for a car. A rigid-body request that
// cannot be served returns DynamicOnly together with the cause; the state is
// always left usable.
func ResolveBackend(mode core.BackendMode, world *rigidbody.World, carID uint, st *core.VehicleState, p core.VehicleParameters) (IntegrationBackend, error) {
	switch mode {
	case core.BackendKinematic:
		st.Body = 0
		return IntegrationBackend{Kind: Kinematic}, nil
	case core.BackendRigidBody:
	default:
		st.Body = 0
		return IntegrationBackend{Kind: DynamicOnly}, nil
	}

	if world == nil {
		st.Body = 0
		return IntegrationBackend{Kind: DynamicOnly}, fmt.Errorf("car %d: %w: no world", carID, rigidbody.ErrBodyCreation)
	}
	h, err := world.Register(carID, st.Position, st.Heading, BodyParams(p))
	if err != nil {
		st.Body = 0
		return IntegrationBackend{Kind: DynamicOnly}, err
	}
	if err := world.SetVelocity(h, st.Velocity, st.YawRate); err != nil {
		return IntegrationBackend{Kind: DynamicOnly}, err
	}
	st.Body = h
	return IntegrationBackend{Kind: RigidBodyAssisted, Handle: h}, nil
}

package identity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

// Signup is one role variant of a signup payload.
type Signup interface {
	Role() Role
	Account() SignupBase
}

// SignupBase holds the fields every role shares.
type SignupBase struct {
	UID      string `json:"uid" validate:"required,entity_id"`
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (b SignupBase) Account() SignupBase { return b }

type UserSignup struct {
	SignupBase
}

type AdminSignup struct {
	SignupBase
	Permissions []string `json:"permissions" validate:"omitempty,dive,oneof=manage-users manage-orders manage-shops"`
}

type ShopkeeperSignup struct {
	SignupBase
	ShopName     string `json:"shopName" validate:"omitempty,max=120"`
	ShopLocation string `json:"shopLocation" validate:"omitempty,max=200"`
}

type DeliverymanSignup struct {
	SignupBase
	VehicleType  string `json:"vehicleType" validate:"omitempty,oneof=Bike Car Van"`
	AssignedArea string `json:"assignedArea" validate:"omitempty,max=120"`
}

type FarmerSignup struct {
	SignupBase
	FarmName     string   `json:"farmName" validate:"omitempty,max=120"`
	FarmLocation string   `json:"farmLocation" validate:"omitempty,max=200"`
	Crops        []string `json:"crops" validate:"omitempty,max=50,dive,required,max=60"`
}

func (UserSignup) Role() Role        { return RoleUser }
func (AdminSignup) Role() Role       { return RoleAdmin }
func (ShopkeeperSignup) Role() Role  { return RoleShopkeeper }
func (DeliverymanSignup) Role() Role { return RoleDeliveryman }
func (FarmerSignup) Role() Role      { return RoleFarmer }

// DecodeSignup reads the role tag, decodes the matching variant and validates
// it. A missing role means User. Fields that belong to another role are
// rejected.
func DecodeSignup(data []byte) (Signup, error) {
	const op = "identity.DecodeSignup"

	var tag struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, apperr.InvalidArgument(op, "invalid signup body")
	}
	if tag.Role == "" {
		tag.Role = RoleUser
	}

	var s Signup
	switch tag.Role {
	case RoleUser:
		s = &UserSignup{}
	case RoleAdmin:
		s = &AdminSignup{}
	case RoleShopkeeper:
		s = &ShopkeeperSignup{}
	case RoleDeliveryman:
		s = &DeliverymanSignup{}
	case RoleFarmer:
		s = &FarmerSignup{}
	default:
		return nil, apperr.InvalidArgument(op, "unknown role %q", tag.Role)
	}

	dec := json.NewDecoder(bytes.NewReader(stripRole(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, apperr.InvalidArgument(op, "invalid %s signup: %v", tag.Role, err)
	}
	if err := validation.Struct(s); err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindInvalidArgument,
			Op:      op,
			Message: fmt.Sprintf("invalid %s signup: %v", tag.Role, validation.FieldErrors(err)),
			Err:     err,
		}
	}
	return s, nil
}

// stripRole drops the tag so strict decoding only sees variant fields.
func stripRole(data []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return data
	}
	delete(m, "role")
	out, err := json.Marshal(m)
	if err != nil {
		return data
	}
	return out
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type seatsBody struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"max=3,unique,dive,gt=0"`
}

func TestValidateStruct(t *testing.T) {
	assert.Nil(t, ValidateStruct(seatsBody{SeatIDs: []uint64{1, 2}}))
	assert.Nil(t, ValidateStruct(seatsBody{}))

	errs := ValidateStruct(seatsBody{SeatIDs: []uint64{1, 2, 3, 4}})
	assert.Equal(t, map[string]string{"seat_ids": "must have at most 3 items"}, errs)

	errs = ValidateStruct(seatsBody{SeatIDs: []uint64{1, 0}})
	assert.Equal(t, map[string]string{"seat_ids[1]": "must be greater than 0"}, errs)

	errs = ValidateStruct(seatsBody{SeatIDs: []uint64{2, 2}})
	assert.Equal(t, map[string]string{"seat_ids": "must not contain duplicates"}, errs)
}

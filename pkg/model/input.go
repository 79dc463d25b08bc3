package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

type Course struct {
	Id      uint64
	Credits uint64 `validate:"gt=0"`
}

type Faculty struct {
	Id      uint64
	MaxLoad uint64 `validate:"gt=0"` // Credit units per term
}

type Room struct {
	Id uint64
}

type TimeSlot struct {
	Id uint64
}

// Eligibility states that a faculty member may teach a course
type Eligibility struct {
	Faculty uint64
	Course  uint64
}

type ModelInput struct {
	Courses   []Course  `validate:"dive"`
	Faculty   []Faculty `validate:"dive"`
	Rooms     []Room
	TimeSlots []TimeSlot
	// A nil relation makes every faculty eligible for every course, while a non-nil one (even empty) is enforced strictly
	Eligibility []Eligibility
}

func InputFromJson(file string) (ModelInput, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return ModelInput{}, err
	}

	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return ModelInput{}, err
	}

	var input ModelInput
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: wholeNumberHook,
		Result:     &input,
	})
	if err != nil {
		return ModelInput{}, err
	}
	if err := decoder.Decode(inputJson); err != nil {
		return ModelInput{}, fmt.Errorf("cannot decode input: %w", err)
	}

	// An "Eligibility" key that is present selects the strict variant, even when it holds no pairs
	_, present := lo.FindKeyBy(inputJson, func(key string, value any) bool {
		return strings.EqualFold(key, "Eligibility") && value != nil
	})
	if present && input.Eligibility == nil {
		input.Eligibility = []Eligibility{}
	}

	return input, nil
}

// wholeNumberHook refuses JSON numbers that would lose their fraction or sign when stored in an unsigned field
func wholeNumberHook(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	if from != reflect.Float64 || to != reflect.Uint64 {
		return data, nil
	}
	number := data.(float64)
	if number < 0 || number != math.Trunc(number) {
		return nil, fmt.Errorf("%v is not a non-negative whole number", number)
	}
	return data, nil
}

package gateway

import "github.com/hitoshi/nutrisport/internal/model"

// リソース種別ごとの定義
var (
	NutritionSpec = Spec{
		Name:     "nutrition",
		Singular: "nutrition record",
		Plural:   "nutrition records",
		Path:     "/nutrition",
	}
	TrainingSpec = Spec{
		Name:           "training",
		Singular:       "training entry",
		Plural:         "training entries",
		Path:           "/training",
		SendIDOnUpdate: true,
	}
	TrainingPlanSpec = Spec{
		Name:           "trainingplan",
		Singular:       "training plan",
		Plural:         "training plans",
		Path:           "/trainingplan",
		ListPath:       "/trainingplan/getAll",
		CreatePath:     "/trainingplan/Add",
		SendIDOnUpdate: true,
	}
	ExerciseSpec = Spec{
		Name:     "exercise",
		Singular: "exercise",
		Plural:   "exercises",
		Path:     "/exercise",
	}
	SportsProfileSpec = Spec{
		Name:           "sportsprofile",
		Singular:       "sports profile",
		Plural:         "sports profiles",
		Path:           "/sportsprofile",
		SendIDOnUpdate: true,
	}
	StatisticSpec = Spec{
		Name:           "statistic",
		Singular:       "statistic",
		Plural:         "statistics",
		Path:           "/statistic",
		SendIDOnUpdate: true,
	}
	FoodProgramSpec = Spec{
		Name:     "foodprogram",
		Singular: "food program",
		Plural:   "food programs",
		Path:     "/foodprogram",
	}
)

// Catalog は全リソース種別のResourceをまとめたもの。
type Catalog struct {
	Nutrition     *Resource[model.Nutrition, model.NutritionForm, string]
	Training      *Resource[model.Training, model.TrainingForm, int]
	TrainingPlan  *Resource[model.TrainingPlan, model.TrainingPlanForm, int]
	Exercise      *Resource[model.Exercise, model.ExerciseForm, int]
	SportsProfile *Resource[model.SportsProfile, model.SportsProfileForm, int]
	Statistic     *Resource[model.Statistic, model.StatisticForm, int]
	FoodProgram   *Resource[model.FoodProgram, model.FoodProgramForm, int]
}

// NewCatalog はclientを共有するCatalogを生成する。
func NewCatalog(client *Client) *Catalog {
	return &Catalog{
		Nutrition:     NewResource[model.Nutrition, model.NutritionForm, string](client, NutritionSpec),
		Training:      NewResource[model.Training, model.TrainingForm, int](client, TrainingSpec),
		TrainingPlan:  NewResource[model.TrainingPlan, model.TrainingPlanForm, int](client, TrainingPlanSpec),
		Exercise:      NewResource[model.Exercise, model.ExerciseForm, int](client, ExerciseSpec),
		SportsProfile: NewResource[model.SportsProfile, model.SportsProfileForm, int](client, SportsProfileSpec),
		Statistic:     NewResource[model.Statistic, model.StatisticForm, int](client, StatisticSpec),
		FoodProgram:   NewResource[model.FoodProgram, model.FoodProgramForm, int](client, FoodProgramSpec),
	}
}

// Specs は全リソース種別の定義を返す。
func Specs() []Spec {
	return []Spec{
		NutritionSpec,
		TrainingSpec,
		TrainingPlanSpec,
		ExerciseSpec,
		SportsProfileSpec,
		StatisticSpec,
		FoodProgramSpec,
	}
}

package model

// 日時フィールドはサーバーの書式がリソースごとに揺れるため文字列のまま保持する。

// Nutrition は食事記録を表す。
type Nutrition struct {
	ID            string  `json:"id"`
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbohydrates float64 `json:"carbohydrates"`
	Lipids        float64 `json:"lipids"`
	Food          string  `json:"food"`
	Notes         string  `json:"notes"`
	Date          string  `json:"date"`
}

// NutritionForm は食事記録の作成・更新ペイロード。
type NutritionForm struct {
	Calories      float64 `json:"Calories"`
	Protein       float64 `json:"Protein"`
	Carbohydrates float64 `json:"Carbohydrates"`
	Lipids        float64 `json:"Lipids"`
	Food          string  `json:"Food"`
	Notes         string  `json:"Notes"`
	Date          string  `json:"Date"`
}

// Training はトレーニング記録を表す。
type Training struct {
	ID        int     `json:"id"`
	Date      string  `json:"date"`
	Duration  int     `json:"duration"`
	Notes     string  `json:"notes"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt *string `json:"updatedAt"`
}

// TrainingForm はトレーニング記録の作成・更新ペイロード。
type TrainingForm struct {
	Date     string `json:"Date"`
	Duration int    `json:"Duration"`
	Notes    string `json:"Notes"`
}

// TrainingLevel はトレーニングプランの難易度。
type TrainingLevel int

const (
	TrainingLevelNone TrainingLevel = iota
	TrainingLevelBeginner
	TrainingLevelIntermediate
	TrainingLevelAdvanced
)

func (l TrainingLevel) String() string {
	switch l {
	case TrainingLevelBeginner:
		return "Beginner"
	case TrainingLevelIntermediate:
		return "Intermediate"
	case TrainingLevelAdvanced:
		return "Advanced"
	default:
		return "None"
	}
}

// TrainingPlan はトレーニングプランを表す。
type TrainingPlan struct {
	ID            int           `json:"id"`
	Objective     string        `json:"objective"`
	Name          string        `json:"name"`
	Level         TrainingLevel `json:"level"`
	DurationWeeks int           `json:"durationWeeks"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     *string       `json:"updatedAt"`
}

// TrainingPlanForm はトレーニングプランの作成・更新ペイロード。
type TrainingPlanForm struct {
	Objective     string        `json:"Objective"`
	Name          string        `json:"Name"`
	Level         TrainingLevel `json:"Level"`
	DurationWeeks int           `json:"DurationWeeks"`
}

// ExerciseTraining はエクササイズに埋め込まれる親トレーニングの要約。
type ExerciseTraining struct {
	ID        int    `json:"id"`
	Duration  int    `json:"duration"`
	Notes     string `json:"notes"`
	Date      string `json:"date"`
	CreatedAt string `json:"createdAt"`
	UserID    string `json:"userId"`
}

// Exercise はトレーニングに属するエクササイズを表す。
type Exercise struct {
	ID          int               `json:"id"`
	Duration    int               `json:"duration"`
	Repetitions int               `json:"repetitions"`
	Sets        int               `json:"sets"`
	Weight      float64           `json:"weight"`
	TrainingID  int               `json:"trainingId"`
	Training    *ExerciseTraining `json:"training,omitempty"`
	CreatedAt   string            `json:"createdAt"`
}

// ExerciseForm はエクササイズの作成・更新ペイロード。
type ExerciseForm struct {
	Duration    int     `json:"Duration"`
	Repetitions int     `json:"Repetitions"`
	Sets        int     `json:"Sets"`
	Weight      float64 `json:"Weight"`
	TrainingID  int     `json:"TrainingId"`
}

// SportsProfileLevel はスポーツプロフィールのレベル（1〜10）。
type SportsProfileLevel int

var sportsProfileLevelNames = map[SportsProfileLevel]string{
	1:  "Beginner",
	2:  "Intermediate",
	3:  "Advanced",
	4:  "Professional",
	5:  "Elite",
	6:  "Expert",
	7:  "Master",
	8:  "Champion",
	9:  "Legend",
	10: "God",
}

func (l SportsProfileLevel) String() string {
	if name, ok := sportsProfileLevelNames[l]; ok {
		return name
	}
	return "Unknown"
}

// SportsProfile はユーザーの身体情報と目標を表す。
type SportsProfile struct {
	ID        int                `json:"id"`
	Weight    float64            `json:"weight"`
	Height    float64            `json:"height"`
	Goals     string             `json:"goals"`
	Level     SportsProfileLevel `json:"level"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt *string            `json:"updatedAt,omitempty"`
	UserID    string             `json:"userId"`
}

// SportsProfileForm はスポーツプロフィールの作成・更新ペイロード。
type SportsProfileForm struct {
	Weight float64            `json:"Weight"`
	Height float64            `json:"Height"`
	Goals  string             `json:"Goals"`
	Level  SportsProfileLevel `json:"Level"`
}

// Statistic は体組成の計測値を表す。
type Statistic struct {
	ID         int     `json:"id"`
	Weight     float64 `json:"weight"`
	MuscleMass float64 `json:"muscleMass"`
	FatMass    float64 `json:"fatMass"`
	HeartRate  int     `json:"heartRate"`
	Date       string  `json:"date"`
	Notes      string  `json:"notes"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  *string `json:"updatedAt,omitempty"`
}

// StatisticForm は計測値の作成・更新ペイロード。
type StatisticForm struct {
	Weight     float64 `json:"Weight"`
	MuscleMass float64 `json:"MuscleMass"`
	FatMass    float64 `json:"FatMass"`
	HeartRate  int     `json:"HeartRate"`
	Date       string  `json:"Date"`
	Notes      string  `json:"Notes"`
}

// FoodProgram は食事プログラムを表す。
type FoodProgram struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	GenerationAI string  `json:"generationAI"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    *string `json:"updatedAt"`
	UserID       string  `json:"userId"`
}

// FoodProgramForm は食事プログラムの作成・更新ペイロード。
type FoodProgramForm struct {
	Name         string `json:"Name"`
	Description  string `json:"Description"`
	GenerationAI string `json:"GenerationAI"`
}

package models

// NutrientVector is the fixed set of tracked nutrients. It is used in two
// roles: per-100g reference values on ReferenceFood (read-only) and
// accumulated totals on PlannedMeal. Field names carry their unit.
type NutrientVector struct {
	EnergyKcal    float64 `gorm:"type:float" json:"energy_kcal"`
	ProteinG      float64 `gorm:"type:float" json:"protein_g"`
	FatG          float64 `gorm:"type:float" json:"fat_g"`
	SaturatedFatG float64 `gorm:"type:float" json:"saturated_fat_g"`
	CarbohydrateG float64 `gorm:"type:float" json:"carbohydrate_g"`
	FiberG        float64 `gorm:"type:float" json:"fiber_g"`
	SugarG        float64 `gorm:"type:float" json:"sugar_g"`
	SaltG         float64 `gorm:"type:float" json:"salt_g"`
	SodiumMg      float64 `gorm:"type:float" json:"sodium_mg"`
	PotassiumMg   float64 `gorm:"type:float" json:"potassium_mg"`
	CalciumMg     float64 `gorm:"type:float" json:"calcium_mg"`
	MagnesiumMg   float64 `gorm:"type:float" json:"magnesium_mg"`
	IronMg        float64 `gorm:"type:float" json:"iron_mg"`
	ZincMg        float64 `gorm:"type:float" json:"zinc_mg"`
	VitaminAUg    float64 `gorm:"type:float" json:"vitamin_a_ug"`
	VitaminDUg    float64 `gorm:"type:float" json:"vitamin_d_ug"`
	VitaminEMg    float64 `gorm:"type:float" json:"vitamin_e_mg"`
	VitaminB1Mg   float64 `gorm:"type:float" json:"vitamin_b1_mg"`
	VitaminB2Mg   float64 `gorm:"type:float" json:"vitamin_b2_mg"`
	VitaminB6Mg   float64 `gorm:"type:float" json:"vitamin_b6_mg"`
	VitaminB12Ug  float64 `gorm:"type:float" json:"vitamin_b12_ug"`
	VitaminCMg    float64 `gorm:"type:float" json:"vitamin_c_mg"`
	FolateUg      float64 `gorm:"type:float" json:"folate_ug"`
}

// AddScaled adds factor * ref into v, field by field. Reference values are
// per 100 g, so callers pass factor = grams / 100.
func (v *NutrientVector) AddScaled(ref NutrientVector, factor float64) {
	v.EnergyKcal += ref.EnergyKcal * factor
	v.ProteinG += ref.ProteinG * factor
	v.FatG += ref.FatG * factor
	v.SaturatedFatG += ref.SaturatedFatG * factor
	v.CarbohydrateG += ref.CarbohydrateG * factor
	v.FiberG += ref.FiberG * factor
	v.SugarG += ref.SugarG * factor
	v.SaltG += ref.SaltG * factor
	v.SodiumMg += ref.SodiumMg * factor
	v.PotassiumMg += ref.PotassiumMg * factor
	v.CalciumMg += ref.CalciumMg * factor
	v.MagnesiumMg += ref.MagnesiumMg * factor
	v.IronMg += ref.IronMg * factor
	v.ZincMg += ref.ZincMg * factor
	v.VitaminAUg += ref.VitaminAUg * factor
	v.VitaminDUg += ref.VitaminDUg * factor
	v.VitaminEMg += ref.VitaminEMg * factor
	v.VitaminB1Mg += ref.VitaminB1Mg * factor
	v.VitaminB2Mg += ref.VitaminB2Mg * factor
	v.VitaminB6Mg += ref.VitaminB6Mg * factor
	v.VitaminB12Ug += ref.VitaminB12Ug * factor
	v.VitaminCMg += ref.VitaminCMg * factor
	v.FolateUg += ref.FolateUg * factor
}

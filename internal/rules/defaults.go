package rules

import "github.com/norkodev/finbot/internal/model"

// Default returns the built-in vocabulary and rules for common Mexican
// merchants. More specific patterns carry a higher priority.
func Default() *Set {
	specs := []ruleSpec{
		{Pattern: `\bOXXO GAS\b|\bPEMEX\b|\bGASOLINERA\b|\bG500\b`, Category: "transporte", Subcategory: "gasolina", Priority: 20},
		{Pattern: `\bUBER EATS\b|\bRAPPI\b|\bDIDI FOOD\b`, Category: "alimentacion", Subcategory: "delivery", Priority: 20},
		{Pattern: `\bINTERES(ES)?\b`, Category: "financiero", Subcategory: "intereses", Priority: 15},
		{Pattern: `\bCOMISION\b|\bANUALIDAD\b`, Category: "financiero", Subcategory: "comisiones", Priority: 15},
		{Pattern: `\bRETIRO\b|\bDISPOSICION EFECTIVO\b`, Category: "financiero", Subcategory: "retiro_efectivo", Priority: 15},
		{Pattern: `\bOXXO\b|\b7 ELEVEN\b|\bCIRCULO K\b`, Category: "gastos_hormiga", Subcategory: "conveniencia", Priority: 10},
		{Pattern: `\bUBER\b|\bDIDI\b|\bCABIFY\b`, Category: "transporte", Subcategory: "rideshare", Priority: 10},
		{Pattern: `\bNETFLIX\b|\bSPOTIFY\b|\bDISNEY\b|\bHBO\b|\bPRIME VIDEO\b|\bYOUTUBE\b`, Category: "entretenimiento", Subcategory: "streaming", Priority: 10},
		{Pattern: `\bCINEPOLIS\b|\bCINEMEX\b`, Category: "entretenimiento", Subcategory: "cine", Priority: 10},
		{Pattern: `\bWALMART\b|\bWAL MART\b|\bSORIANA\b|\bCHEDRAUI\b|\bLA COMER\b|\bCOSTCO\b|\bBODEGA AURRERA\b`, Category: "alimentacion", Subcategory: "supermercado", Priority: 10},
		{Pattern: `\bSTARBUCKS\b|\bCAFE\b`, Category: "alimentacion", Subcategory: "cafe", Priority: 5},
		{Pattern: `\bTELCEL\b|\bAT T\b|\bMOVISTAR\b`, Category: "servicios", Subcategory: "telefonia", Priority: 10},
		{Pattern: `\bTELMEX\b|\bIZZI\b|\bTOTALPLAY\b|\bMEGACABLE\b`, Category: "servicios", Subcategory: "internet", Priority: 10},
		{Pattern: `\bCFE\b`, Category: "servicios", Subcategory: "luz", Priority: 10},
		{Pattern: `\bFARMACIA(S)?\b|\bBENAVIDES\b`, Category: "salud", Subcategory: "farmacia", Priority: 10},
		{Pattern: `\bSMART FIT\b|\bSPORTS WORLD\b`, Category: "salud", Subcategory: "gym", Priority: 10},
		{Pattern: `\bAMAZON\b|\bMERCADO LIBRE\b|\bMERCADOPAGO\b`, Category: "compras", Subcategory: "online", Priority: 5},
		{Pattern: `\bLIVERPOOL\b|\bPALACIO DE HIERRO\b|\bSEARS\b|\bSANBORNS\b`, Category: "compras", Subcategory: "departamental", Priority: 5},
	}

	set := &Set{Vocabulary: model.DefaultVocabulary()}
	for i, spec := range specs {
		rule, err := spec.build(i)
		if err != nil {
			panic(err)
		}
		set.Rules = append(set.Rules, rule)
	}
	return set
}

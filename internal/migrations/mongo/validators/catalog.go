package validators

import "go.mongodb.org/mongo-driver/bson"

var RuleSetValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"guest_type",
			"max_days_advance",
			"min_days_notice",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"guest_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"REGULAR",
					"VIP",
					"CORPORATE",
				},
			},

			"max_days_advance": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  1095,
			},

			"min_days_notice": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},
		},
	},
}

var DepositPolicyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"min_rooms",
			"max_rooms",
			"type",
			"value",
			"active",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"min_rooms": bson.M{
				"bsonType": "int",
				"minimum":  1,
			},

			"max_rooms": bson.M{
				"bsonType": "int",
				"minimum":  1,
			},

			"type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"percent",
					"fixed",
				},
			},

			"value": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"active": bson.M{
				"bsonType": "bool",
			},
		},
	},
}

var SpecialDayValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"date",
			"rule_type",
			"active",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"date": bson.M{
				"bsonType": "date",
			},

			"room_type_id": bson.M{
				"bsonType":  "string",
				"maxLength": 64,
			},

			"rule_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"blocked",
					"special_rate",
				},
			},

			"rate_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"multiplier",
					"fixed",
				},
			},

			"rate_value": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"active": bson.M{
				"bsonType": "bool",
			},
		},
	},
}

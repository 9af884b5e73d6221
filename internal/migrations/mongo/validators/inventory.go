package validators

import "go.mongodb.org/mongo-driver/bson"

var InventoryDayValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"room_type_id",
			"date",
			"total_rooms",
			"reserved_rooms",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"room_type_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "date",
			},

			"total_rooms": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"reserved_rooms": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},
		},
	},
}

var LedgerLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"expires_at",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

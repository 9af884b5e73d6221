package validators

import "go.mongodb.org/mongo-driver/bson"

var WaitlistEntryValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"start_date",
			"end_date",
			"guests",
			"guest_type",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"room_type_id": bson.M{
				"bsonType":  "string",
				"maxLength": 64,
			},

			"start_date": bson.M{
				"bsonType": "date",
			},

			"end_date": bson.M{
				"bsonType": "date",
			},

			"guests": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  100,
			},

			"guest_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"REGULAR",
					"VIP",
					"CORPORATE",
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"PENDING",
					"NOTIFIED",
					"CONVERTED",
					"EXPIRED",
				},
			},

			"notified_at": bson.M{
				"bsonType": "date",
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
